package models

// Display name fallbacks matching the backend's storefront locale.
const (
	DisplayNameFallbackCustomer = "Khách hàng"
	DisplayNameFallbackShop     = "Cửa hàng"
	DisplayNameFallbackUser     = "Người dùng"
	DisplayNameUnknown          = "Unknown User"
)

// ResolveDisplayName computes the name shown for a conversation from the
// viewer's point of view. The branch order is a strict priority:
//  1. shop-scoped, viewer owns the shop: the customer's full name
//  2. shop-scoped, viewer is the customer: the shop name
//  3. user-to-user: the other participant's full name
//  4. nothing resolvable: the unknown-user sentinel
//
// The result is derived state. It is never persisted and callers recompute
// it on every render.
func ResolveDisplayName(viewerID string, c *Conversation) string {
	other := c.OtherParticipant(viewerID)

	switch {
	case c.ShopID != "" && c.IsShopOwner(viewerID):
		if other != nil && other.FullName() != "" {
			return other.FullName()
		}
		return DisplayNameFallbackCustomer
	case c.ShopID != "":
		if c.Shop != nil && c.Shop.Name != "" {
			return c.Shop.Name
		}
		return DisplayNameFallbackShop
	case other != nil:
		if other.FullName() != "" {
			return other.FullName()
		}
		return DisplayNameFallbackUser
	default:
		return DisplayNameUnknown
	}
}
