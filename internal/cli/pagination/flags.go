package pagination

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/apierr"
)

// Sort orders.
const (
	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// sortPartsMax is the maximum number of parts in a sort string (field:order).
const sortPartsMax = 2

const op = "cli.pagination"

// Params holds the paging and sorting flags. Offset paging (--limit/--offset)
// and page paging (--page/--page-size) are mutually exclusive. A zero Limit
// means no limit.
type Params struct {
	Limit    int
	Offset   int
	Page     int
	PageSize int
	Sort     string
}

// AddFlags registers the flags on cmd.
func (p *Params) AddFlags(cmd *cobra.Command, sortHelp string) {
	cmd.Flags().IntVar(&p.Limit, "limit", 0, "show at most this many rows (0 = all)")
	cmd.Flags().IntVar(&p.Offset, "offset", 0, "skip this many rows")
	cmd.Flags().IntVar(&p.Page, "page", 0, "1-based page number, used with --page-size")
	cmd.Flags().IntVar(&p.PageSize, "page-size", 0, "rows per page")
	cmd.Flags().StringVar(&p.Sort, "sort", "", sortHelp)
}

// Validate checks bounds and that only one paging mode is used.
func (p Params) Validate() error {
	switch {
	case p.Limit < 0:
		return apierr.New(apierr.KindValidation, op, "limit cannot be negative")
	case p.Offset < 0:
		return apierr.New(apierr.KindValidation, op, "offset cannot be negative")
	case p.Page < 0:
		return apierr.New(apierr.KindValidation, op, "page cannot be negative")
	case p.PageSize < 0:
		return apierr.New(apierr.KindValidation, op, "page-size cannot be negative")
	case p.Page > 0 && p.Offset > 0:
		return apierr.New(apierr.KindValidation, op, "page and offset are mutually exclusive")
	case p.Page == 0 && p.PageSize > 0:
		return apierr.New(apierr.KindValidation, op, "page-size requires page")
	case p.Page > 0 && p.PageSize == 0:
		return apierr.New(apierr.KindValidation, op, "page requires page-size")
	}
	if _, _, err := ParseSort(p.Sort, SortOrderAsc); err != nil {
		return err
	}
	return nil
}

// IsPageBased reports whether page paging is active.
func (p Params) IsPageBased() bool {
	return p.Page > 0
}

// IsEnabled reports whether any paging flag is set.
func (p Params) IsEnabled() bool {
	return p.Limit > 0 || p.Offset > 0 || p.Page > 0
}

// offsetLimit returns the effective window. A zero limit means to the end.
//
//nolint:nonamedreturns // Named returns improve readability for this multi-value function.
func (p Params) offsetLimit() (offset, limit int) {
	if p.IsPageBased() {
		return (p.Page - 1) * p.PageSize, p.PageSize
	}
	return p.Offset, p.Limit
}

// ParseSort parses "field" or "field:order". An empty string yields an empty
// field, meaning the natural order.
//
//nolint:nonamedreturns // Named returns improve readability for this multi-value function.
func ParseSort(expr, defaultOrder string) (field, order string, err error) {
	if strings.TrimSpace(expr) == "" {
		return "", defaultOrder, nil
	}

	parts := strings.Split(expr, ":")
	if len(parts) > sortPartsMax {
		return "", "", apierr.Newf(apierr.KindValidation, op,
			"invalid sort %q: use 'field' or 'field:order' (e.g. 'amount:desc')", expr)
	}

	field = strings.TrimSpace(parts[0])
	if field == "" {
		return "", "", apierr.New(apierr.KindValidation, op, "sort field cannot be empty")
	}
	order = defaultOrder
	if len(parts) == sortPartsMax {
		order = strings.ToLower(strings.TrimSpace(parts[1]))
	}
	if order != SortOrderAsc && order != SortOrderDesc {
		return "", "", apierr.Newf(apierr.KindValidation, op, "sort order must be 'asc' or 'desc', got %q", order)
	}
	return field, order, nil
}

// Apply sorts items with sorter (when a sort field is set) and then cuts the
// requested page. The input slice is not modified.
func Apply[T any](items []T, p Params, sorter *Sorter[T]) ([]T, Meta, error) {
	field, order, err := ParseSort(p.Sort, SortOrderAsc)
	if err != nil {
		return nil, Meta{}, err
	}
	if field != "" {
		if !sorter.IsValidField(field) {
			return nil, Meta{}, apierr.Newf(apierr.KindValidation, op,
				"invalid sort field %q (valid: %s)", field, strings.Join(sorter.ValidFields(), ", "))
		}
		items = sorter.Sort(items, field, order)
	}

	meta := NewMeta(p, len(items))
	offset, limit := p.offsetLimit()
	if offset >= len(items) {
		return []T{}, meta, nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end], meta, nil
}

func (p Params) String() string {
	if p.IsPageBased() {
		return fmt.Sprintf("page %d, %d per page", p.Page, p.PageSize)
	}
	return fmt.Sprintf("offset %d, limit %d", p.Offset, p.Limit)
}
