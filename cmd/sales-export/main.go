// Command sales-export writes the sales of a date range, with the items each
// one paid for, as gzip-compressed JSON lines.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/settlement"
	"github.com/xenking/comanda/internal/storage/postgres"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		databaseURL string
		fromDate    string
		toDate      string
		timezone    string
		outFile     string
	)

	today := time.Now().Format(dateLayout)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fromDate, "from", today, "first day to export (YYYY-MM-DD)")
	flag.StringVar(&toDate, "to", "", "last day to export, inclusive (defaults to --from)")
	flag.StringVar(&timezone, "timezone", "UTC", "business timezone the days are read in")
	flag.StringVar(&outFile, "out", "", "output file (defaults to sales-<from>-<to>.jsonl.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if toDate == "" {
		toDate = fromDate
	}
	if outFile == "" {
		outFile = fmt.Sprintf("sales-%s-%s.jsonl.gz", fromDate, toDate)
	}

	from, to, err := parseRange(fromDate, toDate, timezone)
	if err != nil {
		slog.Error("invalid range", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, from, to, outFile); err != nil {
		slog.Error("sales export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("sales export completed successfully", slog.String("file", outFile))
}

// parseRange returns [from 00:00, day after to 00:00) in the named zone.
func parseRange(fromDate, toDate, timezone string) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "timezone")
	}
	from, err := time.ParseInLocation(dateLayout, fromDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "from")
	}
	to, err := time.ParseInLocation(dateLayout, toDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "to")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to is before from")
	}
	return from, to.AddDate(0, 0, 1), nil
}

func run(ctx context.Context, databaseURL string, from, to time.Time, outFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	st := postgres.NewStore(pool)

	sales, err := st.Sales.ListRange(ctx, from, to)
	if err != nil {
		return errors.Wrap(err, "list sales")
	}
	slog.Info("exporting sales", slog.Int("count", len(sales)),
		slog.Time("from", from), slog.Time("to", to))

	f, err := os.Create(outFile)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer func() { _ = f.Close() }()

	lookup := func(ctx context.Context, id string) (*order.Order, error) {
		return st.Orders.Get(ctx, id)
	}
	if err := export(ctx, f, sales, lookup); err != nil {
		return err
	}
	return f.Close()
}

// export writes one line per sale to w through a parallel gzip writer.
func export(
	ctx context.Context,
	w io.Writer,
	sales []settlement.Sale,
	lookup func(ctx context.Context, id string) (*order.Order, error),
) error {
	gz, err := pgzip.NewWriterLevel(w, pgzip.BestSpeed)
	if err != nil {
		return errors.Wrap(err, "create gzip writer")
	}
	if err := gz.SetConcurrency(1<<20, 4); err != nil {
		return errors.Wrap(err, "set gzip concurrency")
	}
	bw := bufio.NewWriter(gz)

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	for i := range sales {
		if err := ctx.Err(); err != nil {
			return err
		}
		o, err := lookup(ctx, sales[i].OrderID)
		if err != nil {
			return errors.Wrapf(err, "load order of sale %s", sales[i].ID)
		}
		e.Reset()
		encodeLine(e, &sales[i], o)
		if _, err := bw.Write(e.Bytes()); err != nil {
			return errors.Wrap(err, "write line")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "write line")
		}
	}

	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip writer")
	}
	return nil
}

func encodeLine(e *jx.Encoder, s *settlement.Sale, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("number")
	e.Int64(s.Number)
	e.FieldStart("orderId")
	e.Str(s.OrderID)
	if o.SettlementOf != "" {
		e.FieldStart("settlementOf")
		e.Str(o.SettlementOf)
	}
	e.FieldStart("orderType")
	e.Str(string(o.Type))
	e.FieldStart("paymentMethod")
	e.Str(string(s.PaymentMethod))
	e.FieldStart("totalAmount")
	e.RawStr(s.TotalAmount.StringFixed(2))
	e.FieldStart("createdAt")
	e.Str(s.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("menuItemId")
		e.Str(it.MenuItemID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		e.RawStr(it.UnitPrice.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
