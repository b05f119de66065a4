package database

import (
	"errors"
	"os"
	"path"

	"github.com/igor04091968/sing-l2tp/config"
	"github.com/igor04091968/sing-l2tp/database/model"

	sqlitegorm "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

func OpenDB(dbPath string) (*gorm.DB, error) {
	dir := path.Dir(dbPath)
	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, err
	}

	var gormLogger logger.Interface

	if config.IsDebug() {
		gormLogger = logger.Default
	} else {
		gormLogger = logger.Discard
	}

	c := &gorm.Config{
		Logger: gormLogger,
	}
	conn, err := gorm.Open(sqlitegorm.Open(dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), c)
	if err != nil {
		return nil, err
	}

	if config.IsDebug() {
		conn = conn.Debug()
	}

	if err := conn.AutoMigrate(&model.Tunnel{}); err != nil {
		return nil, err
	}
	return conn, nil
}

func InitDB(dbPath string) error {
	conn, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	db = conn
	return nil
}

func GetDB() *gorm.DB {
	return db
}

func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	db = nil
	return sqlDB.Close()
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
