// Package scope maps capability names granted to credentials onto bit positions so a
// credential's grants can be checked against a required set with one mask operation.
//
// A [Registry] is populated at startup and frozen before use. Unknown names in a
// credential's grant list resolve to no bits, so a typo in a grant can never widen
// access.
package scope
