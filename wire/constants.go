package wire

import "strings"

// StatusCode is a three digit NNTP response code.
type StatusCode int

// Protocol delimiters
const (
	// CRLF terminates every command and response line.
	CRLF = "\r\n"

	// MultiLineEnd terminates a multi-line response body. The leading CRLF
	// belongs to the last data line.
	MultiLineEnd = "\r\n.\r\n"

	// Space separates command tokens.
	Space = " "

	// MaxLineLength is the command line limit of RFC 3977 section 3.1,
	// terminator included.
	MaxLineLength = 512
)

// Command verbs
const (
	CmdAuthInfo     = "AUTHINFO"
	CmdMode         = "MODE"
	CmdQuit         = "QUIT"
	CmdGroup        = "GROUP"
	CmdListGroup    = "LISTGROUP"
	CmdLast         = "LAST"
	CmdNext         = "NEXT"
	CmdArticle      = "ARTICLE"
	CmdHead         = "HEAD"
	CmdBody         = "BODY"
	CmdStat         = "STAT"
	CmdDate         = "DATE"
	CmdList         = "LIST"
	CmdHelp         = "HELP"
	CmdCapabilities = "CAPABILITIES"
	CmdOver         = "OVER"
	CmdHdr          = "HDR"
	CmdNewNews      = "NEWNEWS"
	CmdNewGroups    = "NEWGROUPS"
)

// Response codes the client acts on.
const (
	StatusHelpFollows         StatusCode = 100
	StatusCapabilitiesFollow  StatusCode = 101
	StatusDate                StatusCode = 111
	StatusPostingAllowed      StatusCode = 200 // welcome, posting allowed
	StatusPostingProhibited   StatusCode = 201 // welcome, posting prohibited
	StatusClosing             StatusCode = 205 // QUIT acknowledged
	StatusGroupSelected       StatusCode = 211
	StatusListFollows         StatusCode = 215
	StatusArticleFollows      StatusCode = 220
	StatusHeadFollows         StatusCode = 221
	StatusBodyFollows         StatusCode = 222
	StatusArticleExists       StatusCode = 223
	StatusOverviewFollows     StatusCode = 224
	StatusHeadersFollow       StatusCode = 225
	StatusNewNewsFollows      StatusCode = 230
	StatusNewGroupsFollow     StatusCode = 231
	StatusAuthAccepted        StatusCode = 281
	StatusMoreAuthRequired    StatusCode = 381
	StatusServiceDiscontinued StatusCode = 400 // server initiated disconnect
	StatusNoSuchArticle       StatusCode = 430
	StatusAuthRequired        StatusCode = 480
	StatusAuthRejected        StatusCode = 481
	StatusAuthOutOfSequence   StatusCode = 482
	StatusUnavailable         StatusCode = 502
)

// TLSPorts are the ports on which an encrypted transport is assumed when
// the caller did not say.
var TLSPorts = []int{443, 563}

// multiLineCommands produce a multi-line response on success.
var multiLineCommands = map[string]bool{
	CmdHelp:         true,
	CmdCapabilities: true,
	CmdListGroup:    true,
	CmdList:         true,
	CmdArticle:      true,
	CmdHead:         true,
	CmdBody:         true,
	CmdOver:         true,
	CmdHdr:          true,
	CmdNewNews:      true,
	CmdNewGroups:    true,
}

// multiLineCodes are the success codes followed by a data block.
// 211 is only multi-line as an answer to LISTGROUP, never to GROUP.
var multiLineCodes = map[StatusCode]bool{
	StatusHelpFollows:        true,
	StatusCapabilitiesFollow: true,
	StatusGroupSelected:      true,
	StatusListFollows:        true,
	StatusArticleFollows:     true,
	StatusHeadFollows:        true,
	StatusBodyFollows:        true,
	StatusOverviewFollows:    true,
	StatusHeadersFollow:      true,
	StatusNewNewsFollows:     true,
	StatusNewGroupsFollow:    true,
}

// IsMultiLineCommand reports whether command answers with a multi-line
// response on success.
func IsMultiLineCommand(command string) bool {
	return multiLineCommands[strings.ToUpper(command)]
}

// IsMultiLineStatus reports whether code announces a data block. Callers
// only ask this for commands where IsMultiLineCommand is true.
func IsMultiLineStatus(code StatusCode) bool {
	return multiLineCodes[code]
}

// IsTLSPort reports whether port is one of TLSPorts.
func IsTLSPort(port int) bool {
	for _, p := range TLSPorts {
		if p == port {
			return true
		}
	}
	return false
}

// IsWelcome reports whether code is a server greeting.
func (c StatusCode) IsWelcome() bool {
	return c == StatusPostingAllowed || c == StatusPostingProhibited
}

// Class returns the first digit of the code (1 to 5).
func (c StatusCode) Class() int {
	return int(c) / 100
}
