package core

import (
	"fmt"
	"time"
)

const (
	containerBarcodePrefix = "CNT-"
	maxContainerProbes     = 50
	splitStampLayout       = "20060102150405"
)

// splitBarcode derives the barcode of an item split from base. Collisions
// within the same second get a numeric suffix.
func splitBarcode(r Reader, base string, now time.Time) (string, error) {
	candidate := fmt.Sprintf("%s-%s", base, now.UTC().Format(splitStampLayout))
	exists, err := r.ItemBarcodeExists(candidate)
	if err != nil || !exists {
		return candidate, err
	}
	for n := 2; ; n++ {
		next := fmt.Sprintf("%s-%d", candidate, n)
		exists, err := r.ItemBarcodeExists(next)
		if err != nil {
			return "", err
		}
		if !exists {
			return next, nil
		}
	}
}

// nextContainerBarcode returns the next free CNT-000001 style barcode,
// starting after the current container count. After a bounded number of
// taken candidates it falls back to a timestamp based barcode.
func nextContainerBarcode(r Reader, now time.Time) (string, error) {
	count, err := r.CountContainers()
	if err != nil {
		return "", err
	}
	for i := 1; i <= maxContainerProbes; i++ {
		candidate := fmt.Sprintf("%s%06d", containerBarcodePrefix, count+i)
		exists, err := r.ContainerBarcodeExists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	now = now.UTC()
	return fmt.Sprintf("%s%s.%09d", containerBarcodePrefix, now.Format(splitStampLayout), now.Nanosecond()), nil
}
