package search

// ResolveLink builds the canonical frontend path for an entity. Child
// entities link through their patient. Unknown types resolve to "".
func ResolveLink(typ EntityType, id, parentID string) string {
	switch typ {
	case TypePatient:
		return "/patients/" + id
	case TypeSession:
		return "/patients/" + parentID + "/sessions/" + id
	case TypeInterview:
		return "/patients/" + parentID + "/interviews/" + id
	case TypeTestAttempt:
		return "/patients/" + parentID + "/test-attempts/" + id
	case TypeAttachment:
		return "/patients/" + parentID + "/attachments/" + id
	default:
		return ""
	}
}
