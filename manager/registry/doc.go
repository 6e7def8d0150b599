// Package registry owns the address blocks of every site and the networks
// grouping them.
//
// Every write normalizes the block (subnet moved to the network base, max
// address derived) and checks it against the other blocks of its site
// inside the same store transaction, so two blocks of a site never
// overlap. The check walks the site's blocks in descending subnet order
// from the new block's last address and stops at the first block ending
// before it, so it only visits overlapping blocks plus one.
package registry
