// Package core contains the PSD2 payment-initiation domain contracts, the
// typed error taxonomy, and the client request pipeline. Transport, auth, and
// polling adapters depend on this package; core must not depend on them.
package core
