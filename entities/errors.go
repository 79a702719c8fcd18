package entities

import "errors"

var ErrStoreEntityNotFound = errors.New("store resource not found")
var ErrNoPeersAvailable = errors.New("no peers available for attestation")
