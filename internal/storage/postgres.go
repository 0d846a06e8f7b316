package storage

import (
	"fmt"
	"net/url"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ghwfluffy/coinbase-tradebot/internal/model"
	"github.com/ghwfluffy/coinbase-tradebot/internal/pair"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PostgresConfig defines connection options for the pair database.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// ConnString overrides the assembled DSN when set.
	ConnString string
}

func (c PostgresConfig) dsn() string {
	if c.ConnString != "" {
		return c.ConnString
	}

	host := c.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := c.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}
	u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	return u.String()
}

// orderPairRecord is the persisted column shape of a pair.
type orderPairRecord struct {
	UUID          string `gorm:"primaryKey;column:uuid"`
	Algorithm     string `gorm:"index"`
	State         string `gorm:"index"`
	BuyOrder      string
	SellOrder     string
	BetCents      int64
	BuyPrice      int64
	SellPrice     int64
	Quantity      int64
	OrigSellPrice int64
	CreatedMicros int64
	NextTryMicros int64
	PurchasedPico int64
	SoldPico      int64
	BuyFeesPico   int64
	SellFeesPico  int64

	Modifiers []pair.Modifier `gorm:"serializer:json"`
}

func (orderPairRecord) TableName() string {
	return "order_pairs"
}

func toRecord(p pair.OrderPair) orderPairRecord {
	return orderPairRecord{
		UUID:          p.UUID,
		Algorithm:     p.Algorithm,
		State:         p.State.String(),
		BuyOrder:      p.BuyOrder,
		SellOrder:     p.SellOrder,
		BetCents:      int64(p.BetCents),
		BuyPrice:      int64(p.BuyPrice),
		SellPrice:     int64(p.SellPrice),
		Quantity:      int64(p.Quantity),
		OrigSellPrice: int64(p.OrigSellPrice),
		CreatedMicros: p.CreatedMicros,
		NextTryMicros: p.NextTryMicros,
		PurchasedPico: int64(p.Profit.Purchased),
		SoldPico:      int64(p.Profit.Sold),
		BuyFeesPico:   int64(p.Profit.BuyFees),
		SellFeesPico:  int64(p.Profit.SellFees),
		Modifiers:     p.Modifiers,
	}
}

func fromRecord(r orderPairRecord) pair.OrderPair {
	return pair.OrderPair{
		UUID:          r.UUID,
		Algorithm:     r.Algorithm,
		State:         pair.ParseState(r.State),
		BuyOrder:      r.BuyOrder,
		SellOrder:     r.SellOrder,
		BetCents:      model.Cents(r.BetCents),
		BuyPrice:      model.Cents(r.BuyPrice),
		SellPrice:     model.Cents(r.SellPrice),
		Quantity:      model.Satoshi(r.Quantity),
		OrigSellPrice: model.Cents(r.OrigSellPrice),
		CreatedMicros: r.CreatedMicros,
		NextTryMicros: r.NextTryMicros,
		Profit: model.ProfitData{
			Purchased: model.Pico(r.PurchasedPico),
			Sold:      model.Pico(r.SoldPico),
			BuyFees:   model.Pico(r.BuyFeesPico),
			SellFees:  model.Pico(r.SellFeesPico),
		},
		Modifiers: r.Modifiers,
	}
}

// Postgres is the production Store backed by a gorm connection pool.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the order pair table.
func OpenPostgres(cfg PostgresConfig) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&orderPairRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate order pairs")
	}
	return &Postgres{db: db}, nil
}

func activeStates() []string {
	states := make([]string, 0, 4)
	for st := pair.StatePending; !st.Terminal(); st++ {
		states = append(states, st.String())
	}
	return states
}

func (s *Postgres) Select(f Filter) ([]pair.OrderPair, error) {
	q := s.db.Model(&orderPairRecord{})
	if f.Algorithm != "" {
		q = q.Where("algorithm = ?", f.Algorithm)
	}
	if f.Active {
		q = q.Where("state IN ?", activeStates())
	}
	var records []orderPairRecord
	if err := q.Order("created_micros asc").Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "select order pairs")
	}
	pairs := make([]pair.OrderPair, 0, len(records))
	for _, r := range records {
		pairs = append(pairs, fromRecord(r))
	}
	return pairs, nil
}

func (s *Postgres) Insert(p pair.OrderPair) error {
	r := toRecord(p)
	if err := s.db.Create(&r).Error; err != nil {
		return errors.Wrapf(err, "insert order pair %s", p.UUID)
	}
	return nil
}

func (s *Postgres) Update(p pair.OrderPair) error {
	r := toRecord(p)
	res := s.db.Model(&orderPairRecord{}).Where("uuid = ?", p.UUID).Updates(&r)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update order pair %s", p.UUID)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Remove(uuid string) error {
	if err := s.db.Where("uuid = ?", uuid).Delete(&orderPairRecord{}).Error; err != nil {
		return errors.Wrapf(err, "remove order pair %s", uuid)
	}
	return nil
}

func (s *Postgres) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
