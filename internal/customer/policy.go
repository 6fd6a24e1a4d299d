package customer

import "fmt"

// CanModify decides whether the acting user may change or delete the
// customer: allowed iff the actor created the record. Pure decision,
// no I/O.
func CanModify(actingUserID string, c *Customer) error {
	if actingUserID != "" && actingUserID == c.OwnerID {
		return nil
	}
	return fmt.Errorf("%w: you do not own this customer", ErrForbidden)
}
