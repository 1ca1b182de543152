package tax

import "strings"

// RelationshipOf derives the jurisdiction relationship from the two
// parties' locations. Overseas counterparties are exports regardless of
// state; otherwise states compare case-insensitively.
func RelationshipOf(sellerState, clientState string, overseas bool) Relationship {
	if overseas {
		return RelationshipExport
	}
	if strings.EqualFold(strings.TrimSpace(sellerState), strings.TrimSpace(clientState)) {
		return RelationshipIntraState
	}
	return RelationshipInterState
}
