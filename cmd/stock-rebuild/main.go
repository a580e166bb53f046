package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
)

// Folds the full stock ledger into a per-(product, variant, shop) on-hand
// report. The ledger is the source of truth; any derived stock cache can be
// cross-checked or rebuilt from this output.
func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	rows, err := models.RebuildStockOnHand(context.Background(), *businessID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("product_id\tvariant_id\tshop_id\ton_hand\n")
	for _, row := range rows {
		fmt.Printf("%d\t%d\t%d\t%s\n", row.ProductId, row.VariantId, row.ShopId, row.OnHand.String())
	}
	fmt.Printf("%d keys\n", len(rows))
}
