// Package google holds the Google side of calhelper: OAuth2 configuration,
// the credential lifecycle (load, refresh, interactive consent, persist) and
// the Calendar API client.
//
// Credentials are kept in a TokenStore. FileTokenStore writes a JSON blob,
// SQLiteTokenStore keeps one row per account.
package google
