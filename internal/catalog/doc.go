// Package catalog provides the mailbox catalog a run verifies.
//
// [ATMBSource] crawls the Anytime Mailbox directory: the country page lists state pages, and each
// state page lists locations with a name, price, two address lines and a plan link.
// [FileSource] reads the same data from a CSV file written by [Save], for offline runs.
package catalog
