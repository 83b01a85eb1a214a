package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tempadmin"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/fs"
	"github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	"github.com/trezcool/shule/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	if conf.Database.InMemory() {
		logger.Fatal("the admin CLI requires the postgres database engine")
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	cli, err := newCommandLine(conf, db, logger)
	if err != nil {
		_ = db.Close()
		logger.Fatal(fmt.Sprintf("setting up CLI: %v", err), err)
	}

	// start CLI
	err = cli.run(os.Args)
	if cErr := db.Close(); cErr != nil {
		logger.Error(fmt.Sprintf("closing database: %v", cErr), cErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, db *sqlx.DB, logger core.Logger) (*commandLine, error) {
	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	tempadmin.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, conf, logger)
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsPath, logger)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validate, translator)
	tempAdmins, err := tempadmin.NewManager(conf.TempAdmin, tempadmin.Deps{
		Repo:       sqlxrepos.NewTempAdminRepository(db),
		Audit:      sqlxrepos.NewAuditRepository(db),
		Identity:   usrSvc,
		Mailer:     mailSvc,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
	})
	if err != nil {
		return nil, err
	}

	return &commandLine{
		db:         db,
		usrSvc:     usrSvc,
		tempAdmins: tempAdmins,
		out:        os.Stdout,
	}, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
