package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/ledger_backend/models"
)

func assertFlowIdentity(t *testing.T, rows []models.Balance) {
	t.Helper()
	for _, b := range rows {
		if !b.EndBalance().Equal(b.Balance) {
			t.Fatalf("%s: end balance %s does not match stored balance %s", day(b.Date), b.EndBalance(), b.Balance)
		}
		if !b.EndCashBalance().Equal(b.CashBalance) {
			t.Fatalf("%s: end cash %s does not match stored cash %s", day(b.Date), b.EndCashBalance(), b.CashBalance)
		}
	}
}

func assertContiguous(t *testing.T, rows []models.Balance) {
	t.Helper()
	for i := 1; i < len(rows); i++ {
		if day(rows[i].Date) != day(rows[i-1].Date.AddDate(0, 0, 1)) {
			t.Fatalf("gap between %s and %s", day(rows[i-1].Date), day(rows[i].Date))
		}
		if !rows[i].StartBalance().Equal(rows[i-1].Balance) {
			t.Fatalf("%s: start %s does not carry previous end %s", day(rows[i].Date), rows[i].StartBalance(), rows[i-1].Balance)
		}
	}
}

func TestForwardCalculatorDepository(t *testing.T) {
	account := &models.Account{ID: 1, AccountableType: models.AccountableTypeDepository, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{valuation(1, 0, "1000", models.ValuationKindReconciliation)},
		txns:       []models.Transaction{txn(1, 3, "-100"), txn(1, 5, "50")},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(rows))
	}
	if !rows[0].Balance.Equal(dec("1000")) {
		t.Fatalf("opening row should equal the reconciliation, got %s", rows[0].Balance)
	}
	if !rows[3].Balance.Equal(dec("1100")) || !rows[3].CashInflows.Equal(dec("100")) {
		t.Fatalf("day 3: balance %s inflows %s", rows[3].Balance, rows[3].CashInflows)
	}
	last := rows[len(rows)-1]
	if !last.Balance.Equal(dec("1050")) || !last.CashBalance.Equal(dec("1050")) {
		t.Fatalf("expected 1050 at the end, got balance %s cash %s", last.Balance, last.CashBalance)
	}
	if last.FlowsFactor != 1 {
		t.Fatalf("asset flows factor should be 1, got %d", last.FlowsFactor)
	}
	for _, b := range rows {
		if b.Currency != "BRL" {
			t.Fatalf("expected account currency on every row, got %s", b.Currency)
		}
		if !b.NonCashInflows.IsZero() || !b.NonCashAdjustments.IsZero() {
			t.Fatalf("cash account should not carry non-cash movement on %s", day(b.Date))
		}
	}
	assertFlowIdentity(t, rows)
	assertContiguous(t, rows)
}

func TestForwardCalculatorCurrentAnchorAdjusts(t *testing.T) {
	account := &models.Account{ID: 1, AccountableType: models.AccountableTypeDepository, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{
			valuation(1, 0, "1000", models.ValuationKindReconciliation),
			valuation(1, 2, "1200", models.ValuationKindCurrentAnchor),
		},
		txns: []models.Transaction{txn(1, 1, "-100")},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !rows[2].Balance.Equal(dec("1200")) {
		t.Fatalf("valuation day should match the anchor, got %s", rows[2].Balance)
	}
	if !rows[2].CashAdjustments.Equal(dec("100")) {
		t.Fatalf("expected a 100 cash adjustment, got %s", rows[2].CashAdjustments)
	}
	assertFlowIdentity(t, rows)
	assertContiguous(t, rows)
}

func TestForwardCalculatorReconciliationWinsSameDay(t *testing.T) {
	account := &models.Account{ID: 1, AccountableType: models.AccountableTypeDepository, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{
			valuation(1, 0, "900", models.ValuationKindCurrentAnchor),
			valuation(1, 0, "1000", models.ValuationKindReconciliation),
		},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || !rows[0].Balance.Equal(dec("1000")) {
		t.Fatalf("expected a single 1000 row, got %+v", rows)
	}
}

func TestForwardCalculatorOpeningFallback(t *testing.T) {
	account := &models.Account{
		ID:              1,
		AccountableType: models.AccountableTypeDepository,
		Currency:        "BRL",
		OpeningBalance:  dec("500"),
		CreatedAt:       dayN(4),
	}
	loader := &memLoader{txns: []models.Transaction{txn(1, 2, "20")}}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if day(rows[0].Date) != day(dayN(1)) || !rows[0].Balance.Equal(dec("500")) {
		t.Fatalf("expected opening row on %s with 500, got %s %s", day(dayN(1)), day(rows[0].Date), rows[0].Balance)
	}
	if !rows[1].Balance.Equal(dec("480")) {
		t.Fatalf("expected 480 after the outflow, got %s", rows[1].Balance)
	}
	assertFlowIdentity(t, rows)
}

func TestForwardCalculatorCreditCard(t *testing.T) {
	account := &models.Account{ID: 2, AccountableType: models.AccountableTypeCreditCard, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{valuation(2, 0, "200", models.ValuationKindReconciliation)},
		txns:       []models.Transaction{txn(2, 1, "30"), txn(2, 2, "-100")},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0].FlowsFactor != -1 {
		t.Fatalf("liability flows factor should be -1, got %d", rows[0].FlowsFactor)
	}
	if !rows[1].Balance.Equal(dec("230")) {
		t.Fatalf("purchase should raise the debt to 230, got %s", rows[1].Balance)
	}
	if !rows[2].Balance.Equal(dec("130")) {
		t.Fatalf("payment should lower the debt to 130, got %s", rows[2].Balance)
	}
	assertFlowIdentity(t, rows)
	assertContiguous(t, rows)
}

func TestForwardCalculatorLoan(t *testing.T) {
	account := &models.Account{ID: 3, AccountableType: models.AccountableTypeLoan, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{valuation(3, 0, "10000", models.ValuationKindReconciliation)},
		txns:       []models.Transaction{txn(3, 1, "-500")},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	b := rows[1]
	if !b.Balance.Equal(dec("9500")) {
		t.Fatalf("expected principal 9500, got %s", b.Balance)
	}
	if !b.CashBalance.IsZero() || !b.CashInflows.IsZero() {
		t.Fatalf("loan should keep cash at zero, got %s", b.CashBalance)
	}
	if !b.NonCashInflows.Equal(dec("500")) || !b.NonCashAdjustments.IsZero() {
		t.Fatalf("payment should be a non-cash inflow, got %s adj %s", b.NonCashInflows, b.NonCashAdjustments)
	}
	assertFlowIdentity(t, rows)
}

func TestForwardCalculatorInvestment(t *testing.T) {
	account := &models.Account{ID: 4, AccountableType: models.AccountableTypeInvestment, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{valuation(4, 0, "1000", models.ValuationKindReconciliation)},
		holdings: []models.Holding{
			{AccountId: 4, SecurityId: 9, Date: dayN(0), Qty: dec("6"), Amount: dec("600")},
			// no stored amount: priced from the security price feed
			{AccountId: 4, SecurityId: 9, Date: dayN(1), Qty: dec("7")},
		},
		prices: []models.SecurityPrice{{SecurityId: 9, Date: dayN(0), Price: dec("101.4285714")}},
		trades: []models.Trade{{AccountId: 4, SecurityId: 9, Date: dayN(1), Qty: dec("1"), Price: dec("100"), Amount: dec("100")}},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0].CashBalance.Equal(dec("400")) {
		t.Fatalf("opening cash should exclude holdings, got %s", rows[0].CashBalance)
	}
	b := rows[1]
	if !b.CashBalance.Equal(dec("300")) {
		t.Fatalf("buy should spend 100 cash, got %s", b.CashBalance)
	}
	if !b.CashOutflows.Equal(dec("100")) || !b.NonCashInflows.Equal(dec("100")) {
		t.Fatalf("trade flows: cash out %s non-cash in %s", b.CashOutflows, b.NonCashInflows)
	}
	if !b.NetMarketFlows.Equal(dec("10")) {
		t.Fatalf("expected 10 of market movement, got %s", b.NetMarketFlows)
	}
	if !b.NonCashAdjustments.IsZero() {
		t.Fatalf("no adjustment expected, got %s", b.NonCashAdjustments)
	}
	if !b.Balance.Equal(dec("1010")) {
		t.Fatalf("expected 1010, got %s", b.Balance)
	}
	assertFlowIdentity(t, rows)
	assertContiguous(t, rows)
}

func TestForwardCalculatorPropertyTransactionsMoveCash(t *testing.T) {
	account := &models.Account{ID: 6, AccountableType: models.AccountableTypeProperty, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{valuation(6, 0, "1000", models.ValuationKindReconciliation)},
		txns:       []models.Transaction{txn(6, 2, "-100")},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !rows[0].CashBalance.IsZero() || !rows[0].Balance.Equal(dec("1000")) {
		t.Fatalf("opening value should sit on the non-cash side, got cash %s balance %s", rows[0].CashBalance, rows[0].Balance)
	}
	b := rows[2]
	if !b.CashInflows.Equal(dec("100")) || !b.CashBalance.Equal(dec("100")) {
		t.Fatalf("transaction should move cash, got inflows %s cash %s", b.CashInflows, b.CashBalance)
	}
	if !b.Balance.Equal(dec("1100")) {
		t.Fatalf("expected 1100, got %s", b.Balance)
	}
	for _, r := range rows {
		if !r.NonCashInflows.IsZero() || !r.NonCashOutflows.IsZero() || !r.NonCashAdjustments.IsZero() {
			t.Fatalf("%s: property should carry no non-cash flows or adjustments", day(r.Date))
		}
		if !r.CashAdjustments.IsZero() {
			t.Fatalf("%s: unexpected cash adjustment %s", day(r.Date), r.CashAdjustments)
		}
	}
	assertFlowIdentity(t, rows)
	assertContiguous(t, rows)
}

func TestForwardCalculatorAdjustmentSides(t *testing.T) {
	tests := []struct {
		name        string
		typ         models.AccountableType
		wantCash    string
		wantNonCash string
	}{
		{"depository", models.AccountableTypeDepository, "200", "0"},
		{"vehicle", models.AccountableTypeVehicle, "0", "200"},
		{"loan", models.AccountableTypeLoan, "0", "200"},
		{"other liability", models.AccountableTypeOtherLiability, "0", "200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &models.Account{ID: 7, AccountableType: tt.typ, Currency: "BRL"}
			loader := &memLoader{
				valuations: []models.Valuation{
					valuation(7, 0, "1000", models.ValuationKindReconciliation),
					valuation(7, 1, "1200", models.ValuationKindCurrentAnchor),
				},
			}
			rows, err := calculate(account, loader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(rows) != 2 {
				t.Fatalf("expected 2 rows, got %d", len(rows))
			}
			b := rows[1]
			if !b.Balance.Equal(dec("1200")) {
				t.Fatalf("anchor day should match the valuation, got %s", b.Balance)
			}
			if !b.CashAdjustments.Equal(dec(tt.wantCash)) {
				t.Fatalf("cash adjustment: want %s, got %s", tt.wantCash, b.CashAdjustments)
			}
			if !b.NonCashAdjustments.Equal(dec(tt.wantNonCash)) {
				t.Fatalf("non-cash adjustment: want %s, got %s", tt.wantNonCash, b.NonCashAdjustments)
			}
			if !b.EndBalance().Equal(b.Balance) {
				t.Fatalf("end balance %s does not match stored balance %s", b.EndBalance(), b.Balance)
			}
		})
	}
}

func TestForwardCalculatorOtherLiabilityHoldsCashAtZero(t *testing.T) {
	account := &models.Account{ID: 9, AccountableType: models.AccountableTypeOtherLiability, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{valuation(9, 0, "300", models.ValuationKindReconciliation)},
		txns:       []models.Transaction{txn(9, 1, "-50")},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	b := rows[1]
	if !b.CashInflows.Equal(dec("50")) || !b.NonCashInflows.IsZero() {
		t.Fatalf("transaction should be booked as cash, got cash in %s non-cash in %s", b.CashInflows, b.NonCashInflows)
	}
	if !b.CashBalance.IsZero() || !b.Balance.Equal(dec("300")) {
		t.Fatalf("only valuations move the balance, got cash %s balance %s", b.CashBalance, b.Balance)
	}
	assertFlowIdentity(t, rows)
}

func TestForwardCalculatorOpensBeforeEarliestValuation(t *testing.T) {
	account := &models.Account{ID: 8, AccountableType: models.AccountableTypeDepository, Currency: "BRL", OpeningBalance: dec("40")}
	loader := &memLoader{
		valuations: []models.Valuation{valuation(8, 0, "500", models.ValuationKindCurrentAnchor)},
	}

	rows, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if day(rows[0].Date) != day(dayN(-1)) || !rows[0].Balance.Equal(dec("40")) {
		t.Fatalf("expected opening row on %s with 40, got %s %s", day(dayN(-1)), day(rows[0].Date), rows[0].Balance)
	}
	if !rows[1].Balance.Equal(dec("500")) || !rows[1].CashAdjustments.Equal(dec("460")) {
		t.Fatalf("anchor should land on day 0, got %s adj %s", rows[1].Balance, rows[1].CashAdjustments)
	}
	assertFlowIdentity(t, rows)
	assertContiguous(t, rows)
}

func TestForwardCalculatorNoActivity(t *testing.T) {
	account := &models.Account{ID: 5, AccountableType: models.AccountableTypeDepository, Currency: "BRL", OpeningBalance: dec("10")}

	rows, err := calculate(account, &memLoader{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// today-1 through today
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if day(rows[1].Date) != day(dayN(30)) || !rows[1].Balance.Equal(dec("10")) {
		t.Fatalf("unexpected last row %s %s", day(rows[1].Date), rows[1].Balance)
	}
}

func TestForwardCalculatorIsDeterministic(t *testing.T) {
	account := &models.Account{ID: 1, AccountableType: models.AccountableTypeDepository, Currency: "BRL"}
	loader := &memLoader{
		valuations: []models.Valuation{valuation(1, 0, "1000", models.ValuationKindReconciliation)},
		txns:       []models.Transaction{txn(1, 1, "-10"), txn(1, 1, "25"), txn(1, 4, "7.5")},
	}

	first, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := calculate(account, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("row count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Balance.Equal(second[i].Balance) || day(first[i].Date) != day(second[i].Date) {
			t.Fatalf("row %d differs between runs", i)
		}
	}
}

func TestEntryCacheMemoizes(t *testing.T) {
	loader := &memLoader{txns: []models.Transaction{txn(1, 0, "5")}}
	cache := NewEntryCache(loader)

	for i := 0; i < 3; i++ {
		e, err := cache.Entries(context.Background(), 1, dayN(0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(e.Transactions) != 1 {
			t.Fatalf("expected 1 transaction, got %d", len(e.Transactions))
		}
	}
	if loader.txnReads != 1 {
		t.Fatalf("expected a single load, got %d", loader.txnReads)
	}

	empty, err := cache.Entries(context.Background(), 1, dayN(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(empty.Transactions) != 0 || len(empty.Trades) != 0 {
		t.Fatalf("expected an empty day, got %+v", empty)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyForward, false},
		{"Forward", StrategyForward, false},
		{"reverse", StrategyReverse, false},
		{"sideways", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseStrategy(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseStrategy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewCalculatorRejectsReverse(t *testing.T) {
	account := &models.Account{ID: 1, AccountableType: models.AccountableTypeDepository}
	_, err := NewCalculator(StrategyReverse, account, NewEntryCache(&memLoader{}))
	if !errors.Is(err, ErrUnsupportedStrategy) {
		t.Fatalf("expected ErrUnsupportedStrategy, got %v", err)
	}
}
