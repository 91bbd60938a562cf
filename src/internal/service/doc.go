// Package service provides the outlet selection logic of wlt.
//
// OutletService sits between the front-ends (web page, JSON API, SSH menu,
// CLI) and the mark map. Every change is a read-compose-write of one map
// entry, serialized per source address by KeyedLock so concurrent selections
// for different groups of the same address never drop each other's bits.
//
// # Example Usage
//
//	table := networking.NewNetlinkMarkTable(networking.NewMapRef(cfg.Nftables))
//	svc := service.NewOutletService(catalog, table)
//
//	res, err := svc.Apply(ctx, addr, 0, 0x1, 4)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%#x -> %#x\n", res.OldMark, res.NewMark)
//
// Requests are validated against the catalog before any table access.
// Table errors are returned as they are and never retried.
package service
