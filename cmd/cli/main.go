package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		} else {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 2 {
		if len(args) == 1 && args[0] == "help" {
			printUsage(out)
			return nil
		}
		return errUsage
	}

	c := newClient(getAPIURL(), loadToken())
	group, cmd, rest := args[0], args[1], args[2:]

	switch group + " " + cmd {
	case "auth register":
		return registerUser(ctx, c, rest, out)
	case "auth login":
		return loginUser(ctx, c, rest, out)
	case "auth logout":
		if err := os.Remove(tokenFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Fprintln(out, "✓ Logged out")
		return nil
	case "items list":
		return listItems(ctx, c, rest, out)
	case "items get":
		return getItem(ctx, c, rest, out)
	case "items create":
		return createItem(ctx, c, rest, out)
	case "items update":
		return updateItem(ctx, c, rest, out)
	case "items delete":
		return deleteItem(ctx, c, rest, out)
	case "purchase create":
		return createPurchase(ctx, c, rest, out)
	case "purchase get":
		return getPurchase(ctx, c, rest, out)
	case "purchase history":
		return purchaseHistory(ctx, c, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, group+" "+cmd)
	}
}

// Responses mirror the server's JSON views, keeping prices as sent.
type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type item struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
	Category string      `json:"category"`
	Seller   user        `json:"seller"`
}

type purchase struct {
	ID         string      `json:"id"`
	Quantity   int         `json:"quantity"`
	TotalPrice json.Number `json:"totalPrice"`
	CreatedAt  string      `json:"createdAt"`
	Item       struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"item"`
	Seller user `json:"seller"`
}

// Auth commands
func registerUser(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	login := fs.String("login", "", "login")
	username := fs.String("username", "", "display name")
	password := fs.String("password", "", "password")
	role := fs.String("role", "Buyer", "Seller or Buyer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var u user
	err := c.do(ctx, http.MethodPost, "/auth/register", nil, map[string]string{
		"login": *login, "username": *username, "password": *password, "role": *role,
	}, &u)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Registered %s as %s (%s)\n", u.Username, u.Role, u.ID)
	return nil
}

func loginUser(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	login := fs.String("login", "", "login")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, map[string]string{"login": *login, "password": *password}, &resp); err != nil {
		return err
	}
	if err := saveToken(resp.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Fprintf(out, "✓ Logged in as %s\n", *login)
	return nil
}

// Item commands
func listItems(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("items list", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 10, "page size")
	category := fs.String("category", "", "filter by category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{"page": {strconv.Itoa(*page)}, "maxPageSize": {strconv.Itoa(*size)}}
	if *category != "" {
		q.Set("category", *category)
	}
	var items []item
	if err := c.do(ctx, http.MethodGet, "/items", q, nil, &items); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tQTY\tCATEGORY\tSELLER")
	for _, it := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", it.ID, it.Name, it.Price, it.Quantity, it.Category, it.Seller.Username)
	}
	return w.Flush()
}

func getItem(ctx context.Context, c *client, args []string, out io.Writer) error {
	id, err := itemArg(args)
	if err != nil {
		return err
	}
	var it item
	if err := c.do(ctx, http.MethodGet, "/items/"+id, nil, nil, &it); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d  %s  %s  qty=%d  %s  seller=%s\n", it.ID, it.Name, it.Price, it.Quantity, it.Category, it.Seller.Username)
	return nil
}

func createItem(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("items create", flag.ContinueOnError)
	name := fs.String("name", "", "item name")
	price := fs.String("price", "", "unit price, e.g. 9.99")
	category := fs.String("category", "", "category")
	quantity := fs.Int("quantity", 1, "units in stock")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var it item
	err := c.do(ctx, http.MethodPost, "/items", nil, map[string]any{
		"name": *name, "price": json.Number(*price), "category": *category, "quantity": *quantity,
	}, &it)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Created item %d\n", it.ID)
	return nil
}

func updateItem(ctx context.Context, c *client, args []string, out io.Writer) error {
	id, err := itemArg(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("items update", flag.ContinueOnError)
	name := fs.String("name", "", "new name")
	price := fs.String("price", "", "new unit price")
	category := fs.String("category", "", "new category")
	quantity := fs.Int("quantity", -1, "new stock level")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	patch := map[string]any{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			patch["name"] = *name
		case "price":
			patch["price"] = json.Number(*price)
		case "category":
			patch["category"] = *category
		case "quantity":
			patch["quantity"] = *quantity
		}
	})
	if len(patch) == 0 {
		return fmt.Errorf("%w: nothing to update", errUsage)
	}

	if err := c.do(ctx, http.MethodPatch, "/items/"+id, nil, patch, nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Updated item %s\n", id)
	return nil
}

func deleteItem(ctx context.Context, c *client, args []string, out io.Writer) error {
	id, err := itemArg(args)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, "/items/"+id, nil, nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Deleted item %s\n", id)
	return nil
}

// Purchase commands
func createPurchase(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("purchase create", flag.ContinueOnError)
	itemID := fs.Int64("item", 0, "item id")
	quantity := fs.Int("quantity", 1, "units to buy")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var p purchase
	if err := c.do(ctx, http.MethodPost, "/purchases", nil, map[string]any{"itemId": *itemID, "quantity": *quantity}, &p); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Bought %d x %s for %s (%s)\n", p.Quantity, p.Item.Name, p.TotalPrice, p.ID)
	return nil
}

func getPurchase(ctx context.Context, c *client, args []string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: purchase id required", errUsage)
	}
	var p purchase
	if err := c.do(ctx, http.MethodGet, "/purchases/"+url.PathEscape(args[0]), nil, nil, &p); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s  %d x %s  total=%s  seller=%s  at %s\n", p.ID, p.Quantity, p.Item.Name, p.TotalPrice, p.Seller.Username, p.CreatedAt)
	return nil
}

func purchaseHistory(ctx context.Context, c *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("purchase history", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 10, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var history []purchase
	q := url.Values{"page": {strconv.Itoa(*page)}, "maxPageSize": {strconv.Itoa(*size)}}
	if err := c.do(ctx, http.MethodGet, "/purchases/history", q, nil, &history); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tITEM\tQTY\tTOTAL\tCREATED")
	for _, p := range history {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.ID, p.Item.Name, p.Quantity, p.TotalPrice, p.CreatedAt)
	}
	return w.Flush()
}

func itemArg(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("%w: item id required", errUsage)
	}
	if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
		return "", fmt.Errorf("invalid item id %q", args[0])
	}
	return args[0], nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `shopctl - command line client for the shop API

Usage:
  shopctl <group> <command> [options]

Commands:
  auth      register, login, logout
  items     list, get <id>, create, update <id>, delete <id>
  purchase  create, get <id>, history
  help      Show this help message

Environment Variables:
  SHOP_API         API endpoint (default: http://localhost:8080/api)
  SHOP_TOKEN_FILE  where login stores the token (default: ~/.shop/token)

Examples:
  shopctl auth register -login alice -username Alice -password secret -role Seller
  shopctl auth login -login alice -password secret
  shopctl items create -name Kettle -price 100.50 -category Home -quantity 10
  shopctl purchase create -item 1 -quantity 3
`)
}
