// Package ext is the lifecycle hook system. An extension implements
// Name plus any subset of the hook interfaces; the Registry calls only
// the hooks an extension implements.
//
//	type auditLog struct{ w io.Writer }
//
//	func (a *auditLog) Name() string { return "audit-log" }
//
//	func (a *auditLog) OnGuestPromoted(ctx context.Context, eventID, guestID id.ID) error {
//	    _, err := fmt.Fprintf(a.w, "%s promoted on %s\n", guestID, eventID)
//	    return err
//	}
//
// Hook errors are logged and never propagated.
package ext
