// Package conv provides checked integer conversions for blob layouts.
//
// Blob structures store lengths as u32, vtable entries as u16 and
// references as int32. Writers convert Go ints through this package so an
// oversized input fails loudly instead of wrapping around.
package conv
