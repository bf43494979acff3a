// Package filterdata holds a loaded filter generation: the verified blob
// plus the indexes derived from it once at load time.
//
// A *Context is immutable after New returns. It is shared by pointer between
// every matcher that reads the generation and stays valid for as long as any
// of them holds it.
//
//	mem, err := format.Verify(blob)
//	if err != nil {
//	    return err
//	}
//	fdc := filterdata.New(mem)
//
//	pos, ok := fdc.Domains().Position(domainhash.Fast("example.com"))
package filterdata
