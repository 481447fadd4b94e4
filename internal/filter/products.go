package filter

// Components filters products by attributes of their components.
var Components = MustNew(Schema{
	Entity: "Product",
	Params: []Param{
		{Name: "name", Field: "name", Kind: KindEquals, Type: TypeString},
		{Name: "name__in", Field: "name", Kind: KindIn, Type: TypeString},
	},
})

// Products is the list filter of the product catalog.
var Products = MustNew(Schema{
	Entity: "Product",
	Params: append([]Param{
		{Name: "id__in", Field: "id", Kind: KindIn, Type: TypeUUID},
		{Name: "id__not_in", Field: "id", Kind: KindNotIn, Type: TypeUUID},
		{Name: "name", Field: "name", Kind: KindEquals, Type: TypeString},
		{Name: "name__in", Field: "name", Kind: KindIn, Type: TypeString},
		{Name: "name__not_in", Field: "name", Kind: KindNotIn, Type: TypeString},
		{Name: "is_dish", Field: "is_dish", Kind: KindEquals, Type: TypeBool},
	}, ranges("calories", "proteins", "fats", "carbohydrates")...),
	SearchFields: []string{"name"},
	Orderable:    true,
	Subs: []Sub{{
		Prefix: "components",
		Join: Join{
			Table:        "dish_components_link",
			OwnerColumn:  "dish_id",
			TargetColumn: "component_id",
			TargetTable:  "products",
			TargetKey:    "id",
		},
		Schema: Components,
	}},
})

func ranges(fields ...string) []Param {
	params := make([]Param, 0, 2*len(fields))
	for _, field := range fields {
		params = append(params,
			Param{Name: field + "__lte", Field: field, Kind: KindLte, Type: TypeFloat},
			Param{Name: field + "__gte", Field: field, Kind: KindGte, Type: TypeFloat},
		)
	}
	return params
}
