package store

import (
	"strconv"
	"strings"
)

// Schema templates use {timebase}, {fileid} and {writer} placeholders.

const globalInfoSchema = `
CREATE TABLE IF NOT EXISTS {prefix}_globalinfo (
    Key   TEXT PRIMARY KEY,
    Value TEXT
);
INSERT OR IGNORE INTO {prefix}_globalinfo (Key, Value) VALUES
    ('Version',    '{version}'),
    ('FileStatus', '0'),
    ('TimeBase',   '{timebase}'),
    ('WriterID',   '{writer}'),
    ('FileID',     '{fileid}'),
    ('ValidSets',  '0'),
    ('TRAI',       '0');

CREATE TABLE IF NOT EXISTS {prefix}_fieldinfo (
    field     TEXT PRIMARY KEY,
    Unit      TEXT,
    Parameter TEXT,
    LongName  TEXT
);
`

const priSchema = `
CREATE TABLE IF NOT EXISTS ae_params (
    ID       INTEGER PRIMARY KEY,
    SetupID  INTEGER,
    Chan     INTEGER,
    "ADC_µV" REAL,
    ADC_TE   REAL,
    ADC_SS   REAL,
    PA0_mV   REAL, PA1_mV REAL, PA2_mV REAL, PA3_mV REAL,
    PA4_mV   REAL, PA5_mV REAL, PA6_mV REAL, PA7_mV REAL
);

CREATE TABLE IF NOT EXISTS ae_data (
    SetID   INTEGER PRIMARY KEY AUTOINCREMENT,
    SetType INTEGER NOT NULL,
    Time    INTEGER NOT NULL,
    Chan    INTEGER,
    Status  INTEGER,
    ParamID INTEGER,
    Thr     INTEGER,
    Amp     INTEGER,
    RiseT   INTEGER,
    Dur     INTEGER,
    Eny     INTEGER,
    SS      INTEGER,
    RMS     INTEGER,
    Counts  INTEGER,
    TRAI    INTEGER,
    CCnt    INTEGER,
    CEny    INTEGER,
    CSS     INTEGER,
    CHits   INTEGER,
    PCTD    INTEGER,
    PCTA    INTEGER,
    PA0 INTEGER, PA1 INTEGER, PA2 INTEGER, PA3 INTEGER,
    PA4 INTEGER, PA5 INTEGER, PA6 INTEGER, PA7 INTEGER
);

CREATE TABLE IF NOT EXISTS ae_markers (
    SetID  INTEGER PRIMARY KEY,
    Number INTEGER,
    Data   TEXT
);

CREATE VIEW IF NOT EXISTS view_ae_data AS
SELECT
    d.SetID, d.SetType,
    d.Time * 1.0 / {timebase} AS Time,
    d.Chan, d.Status, d.ParamID,
    d.Thr * p."ADC_µV" AS Thr,
    d.Amp * p."ADC_µV" AS Amp,
    d.RiseT * 1e6 / {timebase} AS RiseT,
    d.Dur * 1e6 / {timebase} AS Dur,
    d.Eny * p.ADC_TE AS Eny,
    d.SS * p.ADC_SS AS SS,
    d.RMS * p."ADC_µV" * 0.0065536 AS RMS,
    d.Counts, d.TRAI,
    d.CCnt,
    d.CEny * p.ADC_TE AS CEny,
    d.CSS * p.ADC_SS AS CSS,
    d.CHits, d.PCTD, d.PCTA,
    d.PA0 * COALESCE(p.PA0_mV, 1) * 1e-3 AS PA0,
    d.PA1 * COALESCE(p.PA1_mV, 1) * 1e-3 AS PA1,
    d.PA2 * COALESCE(p.PA2_mV, 1) * 1e-3 AS PA2,
    d.PA3 * COALESCE(p.PA3_mV, 1) * 1e-3 AS PA3,
    d.PA4 * COALESCE(p.PA4_mV, 1) * 1e-3 AS PA4,
    d.PA5 * COALESCE(p.PA5_mV, 1) * 1e-3 AS PA5,
    d.PA6 * COALESCE(p.PA6_mV, 1) * 1e-3 AS PA6,
    d.PA7 * COALESCE(p.PA7_mV, 1) * 1e-3 AS PA7,
    m.Number, m.Data
FROM ae_data d
LEFT JOIN ae_params p ON d.ParamID = p.ID
LEFT JOIN ae_markers m ON d.SetID = m.SetID;

CREATE VIEW IF NOT EXISTS view_ae_markers AS
SELECT d.SetID, d.Time * 1.0 / {timebase} AS Time, d.SetType, m.Number, m.Data
FROM ae_markers m
JOIN ae_data d ON m.SetID = d.SetID;
`

const traSchema = `
CREATE TABLE IF NOT EXISTS tr_params (
    ID       INTEGER PRIMARY KEY,
    SetupID  INTEGER,
    Chan     INTEGER,
    "ADC_µV" REAL,
    TR_mV    REAL
);

CREATE TABLE IF NOT EXISTS tr_data (
    SetID      INTEGER PRIMARY KEY AUTOINCREMENT,
    Time       INTEGER NOT NULL,
    Chan       INTEGER,
    Status     INTEGER,
    ParamID    INTEGER,
    Pretrigger INTEGER,
    Thr        INTEGER,
    SampleRate INTEGER,
    Samples    INTEGER,
    DataFormat INTEGER,
    Data       BLOB,
    TRAI       INTEGER,
    RMS        INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS tr_data_trai ON tr_data (TRAI);

CREATE VIEW IF NOT EXISTS view_tr_data AS
SELECT
    d.SetID,
    d.Time * 1.0 / {timebase} AS Time,
    d.Chan, d.Status, d.ParamID, d.Pretrigger,
    d.Thr * p."ADC_µV" AS Thr,
    d.SampleRate, d.Samples, d.DataFormat, d.Data,
    p.TR_mV,
    d.TRAI,
    d.RMS * p."ADC_µV" AS RMS
FROM tr_data d
LEFT JOIN tr_params p ON d.ParamID = p.ID;
`

const trfSchema = `
CREATE TABLE IF NOT EXISTS trf_data (
    TRAI INTEGER PRIMARY KEY
);
`

func renderSchema(kind Kind, timeBase int64, fileID string) string {
	r := strings.NewReplacer(
		"{prefix}", kind.Prefix,
		"{version}", strconv.Itoa(kind.Version),
		"{timebase}", strconv.FormatInt(timeBase, 10),
		"{fileid}", fileID,
		"{writer}", writerID,
	)
	return r.Replace(globalInfoSchema + kind.schema)
}
