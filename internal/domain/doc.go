// Package domain holds the core types and repository contracts shared by
// the presence tracker, the PS360 poller, and the echobot. It has no
// dependencies on storage, transport, or the XMPP/SOAP wire formats.
package domain
