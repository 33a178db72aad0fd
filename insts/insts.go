// Package insts provides instruction descriptor definitions and a small
// assembler that produces descriptor programs.
//
// A Descriptor is what the front end hands to the issue logic once per cycle.
// It is already decoded: the execution class, the sub-opcode, the source and
// destination registers with their validity flags, the immediates, the memory
// access width, and the fault flags. No bit-level encoding is modeled.
//
// Usage:
//
//	listing, err := insts.Assemble("addi r1, r0, 5\nhalt\n", 0x1000)
//	if err != nil {
//		return err
//	}
//	for _, d := range listing.Insts {
//		fmt.Println(d)
//	}
package insts
