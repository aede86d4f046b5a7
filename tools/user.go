package tools

import (
	"context"
	"strings"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/internal/identity"
)

// UserIDTool maps a raw identifier (phone number) to the pseudonymous id
// stored with every transaction.
type UserIDTool struct {
	hasher *identity.Hasher
}

// NewUserIDTool fails with ErrConfiguration when secret is empty.
func NewUserIDTool(secret string) (*UserIDTool, error) {
	h, err := identity.NewHasher(secret)
	if err != nil {
		return nil, err
	}
	return &UserIDTool{hasher: h}, nil
}

func (t *UserIDTool) Name() string { return "get_user_id" }

func (t *UserIDTool) Description() string {
	return "Get the user_id used to store and look up transactions, from the user's raw identifier (phone number)."
}

func (t *UserIDTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "user_id", Type: "str", Description: "Raw user identifier as given in the message context", Required: true},
	}
}

func (t *UserIDTool) OutputSchema() string { return "str (hex user id)" }

func (t *UserIDTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	raw, err := requireString(t.Name(), args, "user_id")
	if err != nil {
		return "", err
	}
	return t.hasher.UserID(raw), nil
}

// CategoryTool lists the supported categories.
type CategoryTool struct{}

// Categories is the canonical category list.
var Categories = []string{
	"Housing", "Utilities", "Clothing", "Personal Care", "Food", "Transportation", "Entertainment",
	"Shopping", "Medical", "Other", "Transfer", "Salary", "Taxes", "Insurance", "Debt", "Savings",
	"Investment", "Gifts", "Education", "Charity", "Credit Card",
}

func (CategoryTool) Name() string { return "get_list_category" }

func (CategoryTool) Description() string {
	return "Get the list of categories a transaction can be filed under."
}

func (CategoryTool) Parameters() []framework.ToolParameter { return nil }

func (CategoryTool) OutputSchema() string { return "str (comma separated categories)" }

func (CategoryTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return strings.Join(Categories, ", "), nil
}
