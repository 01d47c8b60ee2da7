package mssql

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	mssqldriver "github.com/denisenkom/go-mssqldb"
)

// databaseScope is the token audience for Azure SQL.
const databaseScope = "https://database.windows.net/.default"

// NewTokenClient creates a client that authenticates to a managed instance
// with a short-lived access token instead of a stored credential. A fresh
// token is requested for every new connection.
func NewTokenClient(host, database string, cred azcore.TokenCredential) (Client, error) {
	if host == "" {
		return nil, fmt.Errorf("mssql: host is required")
	}
	if database == "" {
		database = "master"
	}

	dsn := fmt.Sprintf("server=%s;database=%s;encrypt=true",
		url.QueryEscape(host),
		url.QueryEscape(database),
	)

	connector, err := mssqldriver.NewAccessTokenConnector(dsn, func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		token, err := cred.GetToken(ctx, policy.TokenRequestOptions{
			Scopes: []string{databaseScope},
		})
		if err != nil {
			return "", fmt.Errorf("acquiring database access token: %w", err)
		}
		return token.Token, nil
	})
	if err != nil {
		return nil, fmt.Errorf("mssql: creating token connector for %s: %w", host, err)
	}

	return &client{connector: connector}, nil
}
