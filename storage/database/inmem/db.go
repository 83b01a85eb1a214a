package inmemdb

import (
	"sync"

	"github.com/trezcool/shule/core/tempadmin"
	"github.com/trezcool/shule/core/user"
)

type (
	// DB is an in-memory store enforcing the same constraints as the PostgreSQL schema.
	DB struct {
		user      *userTable
		tempAdmin *tempAdminTable
		audit     *auditTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	tempAdminTable struct {
		mutex sync.RWMutex
		table map[string]*tempadmin.Grant
	}

	auditTable struct {
		mutex sync.RWMutex
		rows  []tempadmin.AuditEvent
	}
)

func Open() *DB {
	return &DB{
		user:      &userTable{table: make(map[string]*user.User)},
		tempAdmin: &tempAdminTable{table: make(map[string]*tempadmin.Grant)},
		audit:     &auditTable{},
	}
}
