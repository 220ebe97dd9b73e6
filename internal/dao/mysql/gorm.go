// Package dao initializes the MySQL connection and the repository layer.
package dao

import (
	"fmt"

	"edulead_chat_server/internal/config"
	"edulead_chat_server/internal/dao/mysql/repository"
	"edulead_chat_server/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// GormDB is the global gorm handle.
var GormDB *gorm.DB

// Repos aggregates all repositories for injection into the service layer.
var Repos *repository.Repositories

// Init connects to MySQL, migrates the schema and builds the repositories.
func Init() {
	conf := config.GetConfig()

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.MysqlConfig.User,
		conf.MysqlConfig.Password,
		conf.MysqlConfig.Host,
		conf.MysqlConfig.Port,
		conf.MysqlConfig.DatabaseName,
	)

	var err error
	GormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		zap.L().Fatal(err.Error())
	}

	err = GormDB.AutoMigrate(
		&model.Chat{},
		&model.Message{},
		&model.Counsellor{},
	)
	if err != nil {
		zap.L().Fatal(err.Error())
	}

	Repos = repository.NewRepositories(GormDB)
}
