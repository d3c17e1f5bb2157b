package domain

// Presence is the aggregated availability of a PACS user.
type Presence string

const (
	PresenceAvailable Presence = "Available"
	PresenceAway      Presence = "Away"
	PresenceBusy      Presence = "Busy"
	PresenceOffline   Presence = "Offline"
)

// PresenceFromShow maps an XMPP presence stanza to a Presence.
// unavailable always means Offline; an empty show on an available
// stanza means the user is at their workstation.
func PresenceFromShow(stanzaType, show string) Presence {
	if stanzaType == "unavailable" {
		return PresenceOffline
	}
	switch show {
	case "":
		return PresenceAvailable
	case "away", "xa":
		return PresenceAway
	case "dnd":
		return PresenceBusy
	default:
		return PresenceOffline
	}
}
