package aws

import "context"

// CollectPages drains an SDK paginator into one slice.
func CollectPages[Output any, Item any](
	ctx context.Context,
	hasMore func() bool,
	nextPage func(context.Context) (Output, error),
	extract func(Output) []Item,
) ([]Item, error) {
	var items []Item
	for hasMore() {
		page, err := nextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, extract(page)...)
	}
	return items, nil
}

// firstOf returns a pointer to the first element, or nil for an empty slice.
func firstOf[Item any](items []Item) *Item {
	if len(items) == 0 {
		return nil
	}
	return &items[0]
}
