package tabu

import (
	"github.com/SebastienMelki/tabu/internal/tabu/internal/domain"
	"github.com/SebastienMelki/tabu/internal/tabu/internal/service"
)

// Sentinel errors returned by the tabu module. Match them with errors.Is.
var (
	ErrInvalidCapacity  = domain.ErrInvalidCapacity
	ErrCapacityTooLarge = service.ErrCapacityTooLarge
	ErrTooManyLists     = service.ErrTooManyLists
	ErrListNotFound     = service.ErrListNotFound
)
