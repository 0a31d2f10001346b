// Package resource maps integer handles to host values.
//
// Guest linear memory can only hold integers, so a boxed Go value that
// crosses into a guest is parked in a Table and the guest sees its handle.
// The handle is the payload of the guest-side object; the value comes back
// out through Take (ownership returns to Go) or Remove (the value is
// released).
//
//	table := resource.NewTable()
//	h := table.Insert(kind, value)
//
//	v, ok := table.Get(h)    // inspect
//	v, ok = table.Take(h)    // move out, not released
//	table.Remove(h)          // release
//
// Values implementing Releaser are released exactly once: by Remove, Clear or
// Close, never by Take.
//
// Handle 0 is never issued. Handles are reused after removal.
//
// # Observers
//
// Observers receive EventCreated, EventTaken and EventReleased notifications,
// which the guest bridge uses to count live boxes.
package resource
