// Package csvreader reads delimited text files using a header row as the
// field names.
//
// # Opening
//
// [Open] accepts a local path or an http(s) URL. The reader skips to
// [Options.HeaderRow], builds a [Header] from that row, checks
// [Options.RequiredHeaders], counts the data rows and positions itself on
// the first data row:
//
//	r, err := csvreader.Open("inventory.csv", csvreader.Options{
//	    RequiredHeaders: []string{"SKU", "Qty"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	for {
//	    sku, _ := r.String("SKU")
//	    fmt.Println(sku)
//	    ok, err := r.Next()
//	    if err != nil {
//	        return err
//	    }
//	    if !ok {
//	        break
//	    }
//	}
//
// # Field names
//
// Titles are sanitized to [A-Za-z0-9_]; "Unit Price ($)" is read as
// "UnitPrice". [Options.HeaderCase] lowercases or camelCases titles first.
//
// # Resolution
//
// [Reader.Get] resolves a name through option names, aliases, maps, links and
// finally the header, applying a [Filter] registered for the field:
//
//	r.AddAlias("id", "SKU")
//	f, _ := csvreader.StringFilter("SKU", func(s string) any { return strings.ToLower(s) })
//	r.AddFilter(f)
//	r.AddMap(csvreader.NewMap("label", "%0 (%1)", "Item", "id"))
//	r.AddLink(csvreader.NewLink("stock", []string{"SKU", "Qty"}, nil))
//
// [Reader.Current] returns the raw row without any of these applied.
package csvreader
