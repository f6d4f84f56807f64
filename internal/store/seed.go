package store

import "github.com/keithlinneman/storefront-api/internal/api"

var DemoCategories = []api.Category{
	{Slug: "coffee", Name: "Coffee"},
	{Slug: "equipment", Name: "Equipment"},
	{Slug: "merch", Name: "Merchandise"},
}

var DemoProducts = []api.Product{
	{ID: "p-100", Name: "House Blend 1kg", Description: "Medium roast, chocolate and hazelnut.", Category: "coffee", PriceCents: 2400, Stock: 120, ImageURL: "https://cdn.example.com/img/house-blend.jpg"},
	{ID: "p-101", Name: "Single Origin Ethiopia 250g", Description: "Light roast, bergamot and stone fruit.", Category: "coffee", PriceCents: 1450, Stock: 40, ImageURL: "https://cdn.example.com/img/ethiopia.jpg"},
	{ID: "p-200", Name: "Pour-over Kettle", Description: "0.9L gooseneck kettle.", Category: "equipment", PriceCents: 6900, Stock: 15},
	{ID: "p-201", Name: "Burr Grinder", Description: "40mm conical burrs, 30 grind settings.", Category: "equipment", PriceCents: 12900, Stock: 8},
	{ID: "p-300", Name: "Enamel Mug", Description: "350ml, dishwasher safe.", Category: "merch", PriceCents: 1800, Stock: 200},
}
