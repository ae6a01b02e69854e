package consts

// Folder names in emitted scripts follow the IMAP namespace convention:
// INBOX is the root and child folders hang off it with a dot separator,
// matching the Maildir++ layout procmail users deliver into.
const (
	MailboxInbox     = "INBOX"
	MailboxDelimiter = '.'
)

// MailboxRootPrefix is the prefix a folder name carries when it lives under
// the INBOX namespace root.
const MailboxRootPrefix = MailboxInbox + string(MailboxDelimiter)
