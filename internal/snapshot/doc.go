// Package snapshot holds detached tables of listings for display surfaces.
//
// A Table is loaded once from the store and then edited in memory. Only the
// location columns (district, neighborhood, full address) are editable, and
// edits are kept pending until Submit sends them back through UpdateLocation:
//
//	table, err := snapshot.Load(ctx, store, storage.Filter{District: "Kadıköy"}, 0)
//	if err != nil {
//	    return err
//	}
//	_ = table.Set(0, snapshot.Neighborhood, "Moda")
//	applied, err := table.Submit(ctx, store)
//
// Tables never refer back to the store; reloading is the only way to observe
// later changes.
package snapshot
