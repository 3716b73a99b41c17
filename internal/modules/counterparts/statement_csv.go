package counterparts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var statementHeader = []string{
	"line_id", "date", "currency", "type", "trade_id", "receipt_id",
	"description", "debit", "credit", "balance_after",
}

// WriteStatementCSV renders statement lines as CSV with a header row
func WriteStatementCSV(w io.Writer, lines []StatementLine) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(statementHeader); err != nil {
		return fmt.Errorf("failed to write statement header: %w", err)
	}

	for _, line := range lines {
		record := []string{
			strconv.FormatInt(line.ID, 10),
			line.TransactionDate.Format("2006-01-02"),
			string(line.Currency),
			string(line.TransactionType),
			optionalID(line.TradeID),
			optionalID(line.ReceiptID),
			line.Description,
			line.DebitAmount.String(),
			line.CreditAmount.String(),
			line.BalanceAfter.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write statement line %d: %w", line.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
