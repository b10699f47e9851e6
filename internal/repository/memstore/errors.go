package memstore

import (
	"fmt"

	"github.com/lalith-99/chatwire/internal/repository"
)

func errDuplicate(what string) error {
	return fmt.Errorf("insert %s: %w", what, repository.ErrDuplicate)
}
