package gateway

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/httpapi"
	"github.com/rshade/finsync/internal/model"
)

// transactionInsert is the create body: the input plus its owner.
type transactionInsert struct {
	UserID string `json:"user_id"`
	model.NewTransaction
}

// FetchTransactions lists the user's transactions dated within the last days
// days, newest first. An empty txType selects both types.
func (g *Gateway) FetchTransactions(
	ctx context.Context, days int, txType model.TransactionType,
) (model.TransactionList, error) {
	const op = "gateway.FetchTransactions"
	if days <= 0 {
		return model.TransactionList{}, apierr.Newf(apierr.KindValidation, op, "days must be positive, got %d", days)
	}
	if txType != "" && !txType.Valid() {
		return model.TransactionList{}, apierr.Newf(apierr.KindValidation, op, "invalid transaction type %q", txType)
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return model.TransactionList{}, err
	}

	since := model.WindowStart(model.Today(g.clock.Now(), sess.Location()), days)
	q := userQuery(sess)
	q.Set("since", since.String())
	q.Set("order", "date.desc")
	if txType != "" {
		q.Set("type", string(txType))
	}

	var txs []model.Transaction
	if err := g.do(ctx, op, httpapi.Request{Path: PathTransactions, Query: q, Token: sess.AccessToken}, &txs); err != nil {
		return model.TransactionList{}, err
	}
	sortTransactions(txs)
	if txs == nil {
		txs = []model.Transaction{}
	}
	return model.TransactionList{Transactions: txs, Count: len(txs)}, nil
}

// FetchTransactionSummary aggregates the same window FetchTransactions(days, "")
// returns, from a single list request.
func (g *Gateway) FetchTransactionSummary(ctx context.Context, days int) (model.TransactionSummary, error) {
	list, err := g.FetchTransactions(ctx, days, "")
	if err != nil {
		return model.TransactionSummary{}, err
	}
	return SummarizeTransactions(list.Transactions, days), nil
}

// GetTransaction returns one of the user's transactions.
func (g *Gateway) GetTransaction(ctx context.Context, id string) (model.Transaction, error) {
	const op = "gateway.GetTransaction"
	if err := requireID(op, id); err != nil {
		return model.Transaction{}, err
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return model.Transaction{}, err
	}
	var tx model.Transaction
	err = g.do(ctx, op, httpapi.Request{
		Path:  itemPath(PathTransactions, id),
		Query: userQuery(sess),
		Token: sess.AccessToken,
	}, &tx)
	return tx, err
}

// CreateTransaction stores a new transaction. A blank category is filled in
// from the description and a zero date means today in the user's time zone.
func (g *Gateway) CreateTransaction(ctx context.Context, in model.NewTransaction) (model.Transaction, error) {
	const op = "gateway.CreateTransaction"
	in.Description = strings.TrimSpace(in.Description)
	if err := in.Validate(); err != nil {
		return model.Transaction{}, err
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return model.Transaction{}, err
	}

	if strings.TrimSpace(in.Category) == "" {
		in.Category = Categorize(in.Type, in.Description)
	}
	if in.Date.IsZero() {
		in.Date = model.Today(g.clock.Now(), sess.Location())
	}

	var tx model.Transaction
	err = g.do(ctx, op, httpapi.Request{
		Method: http.MethodPost,
		Path:   PathTransactions,
		Token:  sess.AccessToken,
		Body:   transactionInsert{UserID: sess.UserID, NewTransaction: in},
	}, &tx)
	if err != nil {
		return model.Transaction{}, err
	}
	g.logger.Info().
		Str("component", "gateway").
		Str("operation", op).
		Str("transaction_id", tx.ID).
		Str("category", tx.Category).
		Msg("transaction created")
	return tx, nil
}

// UpdateTransaction applies patch to the user's transaction id. Clearing the
// category re-runs auto-categorization.
func (g *Gateway) UpdateTransaction(
	ctx context.Context, id string, patch model.TransactionPatch,
) (model.Transaction, error) {
	const op = "gateway.UpdateTransaction"
	if err := requireID(op, id); err != nil {
		return model.Transaction{}, err
	}
	if err := patch.Validate(); err != nil {
		return model.Transaction{}, err
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return model.Transaction{}, err
	}

	if patch.Category != nil && strings.TrimSpace(*patch.Category) == "" {
		cat, cerr := g.recategorize(ctx, id, patch)
		if cerr != nil {
			return model.Transaction{}, cerr
		}
		patch.Category = &cat
	}

	var tx model.Transaction
	err = g.do(ctx, op, httpapi.Request{
		Method: http.MethodPatch,
		Path:   itemPath(PathTransactions, id),
		Query:  userQuery(sess),
		Token:  sess.AccessToken,
		Body:   patch,
	}, &tx)
	return tx, err
}

// recategorize picks the category for a patch that cleared it, reading the
// stored description or type when the patch leaves them unchanged.
func (g *Gateway) recategorize(ctx context.Context, id string, patch model.TransactionPatch) (string, error) {
	if patch.Description != nil && patch.Type != nil {
		return Categorize(*patch.Type, *patch.Description), nil
	}
	current, err := g.GetTransaction(ctx, id)
	if err != nil {
		return "", err
	}
	return Categorize(patch.Apply(current).Type, patch.Apply(current).Description), nil
}

// DeleteTransaction removes the user's transaction id.
func (g *Gateway) DeleteTransaction(ctx context.Context, id string) error {
	const op = "gateway.DeleteTransaction"
	if err := requireID(op, id); err != nil {
		return err
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return err
	}
	return g.do(ctx, op, httpapi.Request{
		Method: http.MethodDelete,
		Path:   itemPath(PathTransactions, id),
		Query:  userQuery(sess),
		Token:  sess.AccessToken,
	}, nil)
}

// sortTransactions orders by date descending, then newest creation first.
func sortTransactions(txs []model.Transaction) {
	slices.SortStableFunc(txs, func(a, b model.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
