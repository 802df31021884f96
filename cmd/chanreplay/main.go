// Command chanreplay replays a symbol's bar history from SQLite through
// the structural analyzer and persists every buy/sell point the analyzer
// ever recorded (its full history, including points later pruned as
// unsure) back to a bsp_history table. It does not persist analyzer state
// itself (see SPEC_FULL.md §4.H) — only the bar input and bsp output.
package main

import (
	"database/sql"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"chanalyzer/config"
	"chanalyzer/internal/analyzer"
	"chanalyzer/internal/chanconfig"
	"chanalyzer/internal/logger"
)

func main() {
	log := logger.Init("chanreplay", slog.LevelInfo)
	cfg := config.Load()
	chanCfg := chanconfig.FromEnv("CHANALYZER")

	db, err := sql.Open("sqlite3", cfg.SQLitePath)
	if err != nil {
		log.Error("chanreplay: open sqlite", "err", err, "path", cfg.SQLitePath)
		return
	}
	defer db.Close()

	if err := ensureSchema(db); err != nil {
		log.Error("chanreplay: ensure schema", "err", err)
		return
	}

	a := analyzer.New(chanCfg)

	rows, err := db.Query(`SELECT time, open, high, low, close, macd FROM bars WHERE symbol = ? ORDER BY time ASC`, cfg.ReplaySymbol)
	if err != nil {
		log.Error("chanreplay: query bars", "err", err)
		return
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var t int64
		var open, high, low, close, macd float64
		if err := rows.Scan(&t, &open, &high, &low, &close, &macd); err != nil {
			log.Error("chanreplay: scan bar", "err", err)
			return
		}
		if _, err := a.AddK(unixToTime(t), open, high, low, close, macd); err != nil {
			log.Warn("chanreplay: rejected bar", "update_id", a.LastUpdateID(), "err", err, "time", t)
			continue
		}
		n++
	}
	if err := rows.Err(); err != nil {
		log.Error("chanreplay: row iteration", "err", err)
		return
	}

	if err := persistBsp(db, cfg.ReplaySymbol, a); err != nil {
		log.Error("chanreplay: persist bsp history", "err", err)
		return
	}

	log.Info("chanreplay: replay complete", "symbol", cfg.ReplaySymbol, "bars", n, "bsp_count", a.Bsps().HistoryLen())
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT NOT NULL,
	time   INTEGER NOT NULL,
	open   REAL NOT NULL,
	high   REAL NOT NULL,
	low    REAL NOT NULL,
	close  REAL NOT NULL,
	macd   REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, time)
);
CREATE TABLE IF NOT EXISTS bsp_history (
	symbol   TEXT NOT NULL,
	bsp_idx  INTEGER NOT NULL,
	is_buy   INTEGER NOT NULL,
	time     INTEGER NOT NULL,
	types    TEXT NOT NULL,
	PRIMARY KEY (symbol, bsp_idx)
);
`)
	return err
}

func persistBsp(db *sql.DB, symbol string, a *analyzer.Analyzer) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO bsp_history (symbol, bsp_idx, is_buy, time, types) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < a.Bsps().HistoryLen(); i++ {
		pt := a.Bsps().HistoryAt(i)
		line := a.Bis().Get(pt.BiIdx())
		typesStr := typesToCSV(pt)
		if _, err := stmt.Exec(symbol, pt.Index(), boolToInt(pt.IsBuy()), line.EndTime().Unix(), typesStr); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
