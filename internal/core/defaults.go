package core

import "github.com/google/uuid"

// DefaultCategories are the system categories every user sees. The SQL
// migrations seed the same rows with the same IDs.
func DefaultCategories() []Category {
	return []Category{
		defaultCategory("29b670cb-c12c-5360-b617-b964bdc7d167", "Entertainment", "film", Expense),
		defaultCategory("a8e232dd-a35c-5e27-b1a6-eb5db5acd50e", "Bills", "file-text", Expense),
		defaultCategory("43cb919c-0aee-5c0e-8c15-712dbc672fd2", "Business", "store", Income),
		defaultCategory("dc9f3325-858c-55bb-8ebe-ef96d3da1e2e", "Education", "book-open", Expense),
		defaultCategory("456766d3-6d13-5410-8041-1242157afc0a", "Food", "utensils", Expense),
		defaultCategory("5831aff9-3736-57ca-83bd-0d71b6bf306e", "Gift", "gift", Income),
		defaultCategory("93b66f4c-66b0-57fa-a84d-5cca86729c35", "Health", "heart-pulse", Expense),
		defaultCategory("f110422a-5606-5950-a517-d65c8a533bd2", "Other income", "plus-circle", Income),
		defaultCategory("31ffcba4-e07a-5b59-9a0a-a12b1f10057a", "Salary", "briefcase", Income),
		defaultCategory("90de6f7e-d514-5649-9830-8a09d355fe91", "Shopping", "shopping-bag", Expense),
		defaultCategory("4111f9bb-9eec-5bc7-b562-f49e98178fc4", "Transport", "bus", Expense),
	}
}

func defaultCategory(id, name, icon string, kind Kind) Category {
	return Category{ID: uuid.MustParse(id), Name: name, Icon: icon, Kind: kind, IsDefault: true}
}
