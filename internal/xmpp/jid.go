package xmpp

import "strings"

// The PACS chat server escapes capital letters in usernames: every
// capital becomes '|' followed by its lowercase form, and the bare JID
// lives on the "cdhb" domain. So pacs user "jBloggs" chats as
// "j|bloggs@cdhb".

const pacsDomain = "cdhb"

// ToJID converts a PACS username to its bare JID.
func ToJID(pacs string) string {
	var b strings.Builder
	b.Grow(len(pacs) + len(pacsDomain) + 1)
	for _, r := range pacs {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('|')
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('@')
	b.WriteString(pacsDomain)
	return b.String()
}

// ToPACS converts a JID (bare or full) back to the PACS username.
func ToPACS(jid string) string {
	local, _, _ := strings.Cut(jid, "@")
	var b strings.Builder
	b.Grow(len(local))
	escaped := false
	for _, r := range local {
		switch {
		case escaped:
			if r >= 'a' && r <= 'z' {
				b.WriteRune(r - 'a' + 'A')
			} else {
				b.WriteRune(r)
			}
			escaped = false
		case r == '|':
			escaped = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// bareJID strips the resource part of a full JID.
func bareJID(jid string) string {
	bare, _, _ := strings.Cut(jid, "/")
	return bare
}
