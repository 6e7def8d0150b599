package errors

import (
	"github.com/contractor/addrspace/manager/state/store"
	pkgerrors "github.com/pkg/errors"
)

// FromStore maps an error returned by a store transaction to the
// taxonomy. Errors already in the taxonomy and unknown errors are returned
// unchanged.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	switch pkgerrors.Cause(err) {
	case store.ErrOffsetConflict:
		return ErrConflict("(address_block, offset)", err.Error())
	case store.ErrNameConflict:
		return ErrConflict("name", err.Error())
	case store.ErrLocationConflict:
		return ErrConflict("(foundation, physical_location)", err.Error())
	case store.ErrMACConflict:
		return ErrConflict("mac", err.Error())
	case store.ErrIntervalConflict:
		return ErrConflict("(site, subnet)", err.Error())
	case store.ErrSequenceConflict:
		return ErrConflict("version", err.Error())
	case store.ErrExist:
		return ErrConflict("id", err.Error())
	}
	return err
}
