package main

import (
	"bytes"
	"strings"
	"testing"

	"prod-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintProducts(t *testing.T) {
	var out bytes.Buffer
	err := printProducts(&out, []*models.Product{
		{ProductID: "itm1", Title: "Phone", Rating: "4.5", TotalReviews: "120", Price: "₹100"},
		{ProductID: "itm2", Title: "Earbuds", Rating: "4.1", TotalReviews: "8", Price: "₹20"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "TITLE", "RATING", "REVIEWS", "PRICE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"itm1", "Phone", "4.5", "120", "₹100"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"itm2", "Earbuds", "4.1", "8", "₹20"}, strings.Fields(lines[2]))
}

func TestPrintProducts_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printProducts(&out, nil))
	assert.Equal(t, "No products stored\n", out.String())
}

func TestListCommandRegistered(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "list", cmd.Name())
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	assert.NotNil(t, cmd.Flags().Lookup("offset"))
}
