// Package networking provides access to the kernel mark map for wlt.
//
// The map is an nftables map keyed by source address whose values are packet
// marks, e.g.
//
//	table inet wlt {
//	    map src2mark {
//	        type ipv4_addr : mark
//	        flags timeout
//	    }
//	}
//
// The operator provisions the table, its chains and the ip rules that route
// each mark. This package only reads and writes map elements.
//
// # Backends
//
//   - NetlinkMarkTable: nf_tables over netlink (google/nftables)
//   - NftMarkTable: executes the nft binary
//   - MemoryMarkTable: in-process map for dry runs and tests
//
// All backends replace an entry with a single transaction of three commands:
// add the current element, delete it, add the new one. The kernel applies the
// batch entirely or not at all.
//
// # Self-check
//
// CheckOutletRules lists the ip rules matching each outlet's fwmark, so a
// missing policy route can be reported before users select the outlet.
package networking
