package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func validTrade() models.KryptosekkenTransaction {
	return models.KryptosekkenTransaction{
		Tidspunkt: at("2023-05-01 10:00:00"),
		Type:      models.TypeHandel,
		Inn:       models.Dec(d(100)),
		InnValuta: "DFI",
		Ut:        models.Dec(d(0.2)),
		UtValuta:  "ETH",
		Marked:    "CakeDeFi",
		RowNum:    2,
	}
}

func hasError(res Result, substr string) bool {
	for _, e := range res.Errors() {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsCleanBatch(t *testing.T) {
	res := Validate([]models.KryptosekkenTransaction{validTrade()}, 2023)
	if !res.Valid {
		t.Fatalf("clean batch should be valid: %v", res.Errors())
	}
	if res.TransactionCount != 1 {
		t.Errorf("TransactionCount = %d, want 1", res.TransactionCount)
	}
}

func TestValidateEmptyBatch(t *testing.T) {
	res := Validate(nil, 2023)
	if !res.Valid {
		t.Error("empty batch is valid, just warned about")
	}
	if len(res.Warnings()) != 1 {
		t.Errorf("got %d warnings, want 1", len(res.Warnings()))
	}
}

func TestValidateMissingFields(t *testing.T) {
	tx := validTrade()
	tx.Tidspunkt = time.Time{}
	tx.Type = ""
	tx.Inn = nil
	tx.InnValuta = ""
	tx.Ut = nil
	tx.UtValuta = ""
	res := Validate([]models.KryptosekkenTransaction{tx}, 0)
	if res.Valid {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"Tidspunkt is required", "Type is required", "Inn or Ut"} {
		if !hasError(res, want) {
			t.Errorf("missing error %q in %v", want, res.Errors())
		}
	}
}

func TestValidateUnknownType(t *testing.T) {
	tx := validTrade()
	tx.Type = "Gave"
	res := Validate([]models.KryptosekkenTransaction{tx}, 0)
	if !hasError(res, "invalid Type") {
		t.Errorf("expected invalid Type error, got %v", res.Errors())
	}
}

func TestValidateAmountWithoutCurrency(t *testing.T) {
	tx := validTrade()
	tx.UtValuta = ""
	res := Validate([]models.KryptosekkenTransaction{tx}, 0)
	if !hasError(res, "Ut-Valuta missing") {
		t.Errorf("expected missing currency error, got %v", res.Errors())
	}
}

func TestValidateCurrencyCodeRules(t *testing.T) {
	tx := validTrade()
	tx.InnValuta = "VERYLONGCURRENCYCODE1"
	res := Validate([]models.KryptosekkenTransaction{tx}, 0)
	if !hasError(res, "invalid Inn-Valuta") {
		t.Errorf("expected currency code error, got %v", res.Errors())
	}

	tx = validTrade()
	tx.InnValuta = "BTC-DFI" // hyphenated LP codes are allowed
	res = Validate([]models.KryptosekkenTransaction{tx}, 0)
	if !res.Valid {
		t.Errorf("hyphenated currency should pass: %v", res.Errors())
	}
}

func TestValidateDecimalPrecision(t *testing.T) {
	tx := validTrade()
	over := decimal.RequireFromString("1234567890123456789") // 19 integer digits
	tx.Inn = models.Dec(over)
	res := Validate([]models.KryptosekkenTransaction{tx}, 0)
	if !hasError(res, "precision") {
		t.Errorf("expected precision error, got %v", res.Errors())
	}
}

func TestValidateWrongYear(t *testing.T) {
	res := Validate([]models.KryptosekkenTransaction{validTrade()}, 2022)
	if !hasError(res, "not from expected year 2022") {
		t.Errorf("expected wrong-year error, got %v", res.Errors())
	}
	// Year 0 skips the check.
	res = Validate([]models.KryptosekkenTransaction{validTrade()}, 0)
	if !res.Valid {
		t.Errorf("year 0 should skip the year check: %v", res.Errors())
	}
}

func TestValidateHandelLogic(t *testing.T) {
	tx := validTrade()
	tx.Ut = nil
	tx.UtValuta = ""
	res := Validate([]models.KryptosekkenTransaction{tx}, 0)
	if !hasError(res, "Handel transaction missing Inn or Ut") {
		t.Errorf("expected one-sided Handel error, got %v", res.Errors())
	}

	tx = validTrade()
	tx.UtValuta = tx.InnValuta
	res = Validate([]models.KryptosekkenTransaction{tx}, 0)
	if !hasError(res, "same Inn-Valuta and Ut-Valuta") {
		t.Errorf("expected same-currency Handel error, got %v", res.Errors())
	}
}

func TestValidateInntektLogic(t *testing.T) {
	tx := models.KryptosekkenTransaction{
		Tidspunkt: at("2023-05-01 06:00:00"),
		Type:      models.TypeInntekt,
		Inn:       models.Dec(decimal.Zero),
		InnValuta: "DFI",
		RowNum:    2,
	}
	res := Validate([]models.KryptosekkenTransaction{tx}, 0)
	if !hasError(res, "non-positive amount") {
		t.Errorf("expected non-positive Inntekt error, got %v", res.Errors())
	}
}

func TestValidateDateSpanWarning(t *testing.T) {
	early := validTrade()
	late := validTrade()
	late.Tidspunkt = at("2024-06-01 10:00:00")
	res := Validate([]models.KryptosekkenTransaction{early, late}, 0)
	var warned bool
	for _, w := range res.Warnings() {
		if strings.Contains(w, "more than a typical tax year") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected span warning, got %v", res.Warnings())
	}
}

func TestValidateHighFeeWarning(t *testing.T) {
	tx := validTrade()
	tx.Gebyr = models.Dec(d(0.05)) // 25% of the 0.2 Ut
	tx.GebyrValuta = "ETH"
	res := Validate([]models.KryptosekkenTransaction{tx}, 0)
	var warned bool
	for _, w := range res.Warnings() {
		if strings.Contains(w, "fees above") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected high fee warning, got %v", res.Warnings())
	}
}
