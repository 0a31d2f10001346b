package ffiobject

// Null is a value carrying no data, for result arms that only signal success.
// It occupies one byte so it has a layout on both sides of the boundary.
type Null struct {
	_ uint8
}
