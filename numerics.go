package ircx

import "fmt"

// numericCodes maps symbolic reply names to their three-digit command
// strings. Names follow RFC 1459/2812 plus the IRCv3 SASL numerics.
var numericCodes = map[string]string{
	"RPL_WELCOME":           "001",
	"RPL_YOURHOST":          "002",
	"RPL_CREATED":           "003",
	"RPL_MYINFO":            "004",
	"RPL_ISUPPORT":          "005",
	"RPL_UMODEIS":           "221",
	"RPL_LUSERCLIENT":       "251",
	"RPL_LUSEROP":           "252",
	"RPL_LUSERUNKNOWN":      "253",
	"RPL_LUSERCHANNELS":     "254",
	"RPL_LUSERME":           "255",
	"RPL_ADMINME":           "256",
	"RPL_ADMINLOC1":         "257",
	"RPL_ADMINLOC2":         "258",
	"RPL_ADMINEMAIL":        "259",
	"RPL_TRYAGAIN":          "263",
	"RPL_AWAY":              "301",
	"RPL_USERHOST":          "302",
	"RPL_ISON":              "303",
	"RPL_UNAWAY":            "305",
	"RPL_NOWAWAY":           "306",
	"RPL_WHOISUSER":         "311",
	"RPL_WHOISSERVER":       "312",
	"RPL_WHOISOPERATOR":     "313",
	"RPL_WHOWASUSER":        "314",
	"RPL_ENDOFWHO":          "315",
	"RPL_WHOISIDLE":         "317",
	"RPL_ENDOFWHOIS":        "318",
	"RPL_WHOISCHANNELS":     "319",
	"RPL_LISTSTART":         "321",
	"RPL_LIST":              "322",
	"RPL_LISTEND":           "323",
	"RPL_CHANNELMODEIS":     "324",
	"RPL_UNIQOPIS":          "325",
	"RPL_WHOISACCOUNT":      "330",
	"RPL_NOTOPIC":           "331",
	"RPL_TOPIC":             "332",
	"RPL_TOPICWHOTIME":      "333",
	"RPL_INVITING":          "341",
	"RPL_INVITELIST":        "346",
	"RPL_ENDOFINVITELIST":   "347",
	"RPL_EXCEPTLIST":        "348",
	"RPL_ENDOFEXCEPTLIST":   "349",
	"RPL_VERSION":           "351",
	"RPL_WHOREPLY":          "352",
	"RPL_NAMREPLY":          "353",
	"RPL_WHOSPCRPL":         "354",
	"RPL_LINKS":             "364",
	"RPL_ENDOFLINKS":        "365",
	"RPL_ENDOFNAMES":        "366",
	"RPL_BANLIST":           "367",
	"RPL_ENDOFBANLIST":      "368",
	"RPL_ENDOFWHOWAS":       "369",
	"RPL_INFO":              "371",
	"RPL_MOTD":              "372",
	"RPL_ENDOFINFO":         "374",
	"RPL_MOTDSTART":         "375",
	"RPL_ENDOFMOTD":         "376",
	"RPL_YOUREOPER":         "381",
	"RPL_REHASHING":         "382",
	"RPL_TIME":              "391",
	"ERR_NOSUCHNICK":        "401",
	"ERR_NOSUCHSERVER":      "402",
	"ERR_NOSUCHCHANNEL":     "403",
	"ERR_CANNOTSENDTOCHAN":  "404",
	"ERR_TOOMANYCHANNELS":   "405",
	"ERR_WASNOSUCHNICK":     "406",
	"ERR_TOOMANYTARGETS":    "407",
	"ERR_NOORIGIN":          "409",
	"ERR_NORECIPIENT":       "411",
	"ERR_NOTEXTTOSEND":      "412",
	"ERR_UNKNOWNCOMMAND":    "421",
	"ERR_NOMOTD":            "422",
	"ERR_NOADMININFO":       "423",
	"ERR_NONICKNAMEGIVEN":   "431",
	"ERR_ERRONEUSNICKNAME":  "432",
	"ERR_NICKNAMEINUSE":     "433",
	"ERR_NICKCOLLISION":     "436",
	"ERR_UNAVAILRESOURCE":   "437",
	"ERR_USERNOTINCHANNEL":  "441",
	"ERR_NOTONCHANNEL":      "442",
	"ERR_USERONCHANNEL":     "443",
	"ERR_NOTREGISTERED":     "451",
	"ERR_NEEDMOREPARAMS":    "461",
	"ERR_ALREADYREGISTRED":  "462",
	"ERR_NOPERMFORHOST":     "463",
	"ERR_PASSWDMISMATCH":    "464",
	"ERR_YOUREBANNEDCREEP":  "465",
	"ERR_KEYSET":            "467",
	"ERR_CHANNELISFULL":     "471",
	"ERR_UNKNOWNMODE":       "472",
	"ERR_INVITEONLYCHAN":    "473",
	"ERR_BANNEDFROMCHAN":    "474",
	"ERR_BADCHANNELKEY":     "475",
	"ERR_BADCHANMASK":       "476",
	"ERR_NOCHANMODES":       "477",
	"ERR_BANLISTFULL":       "478",
	"ERR_NOPRIVILEGES":      "481",
	"ERR_CHANOPRIVSNEEDED":  "482",
	"ERR_CANTKILLSERVER":    "483",
	"ERR_RESTRICTED":        "484",
	"ERR_NOOPERHOST":        "491",
	"ERR_UMODEUNKNOWNFLAG":  "501",
	"ERR_USERSDONTMATCH":    "502",
	"RPL_LOGGEDIN":          "900",
	"RPL_LOGGEDOUT":         "901",
	"ERR_NICKLOCKED":        "902",
	"RPL_SASLSUCCESS":       "903",
	"ERR_SASLFAIL":          "904",
	"ERR_SASLTOOLONG":       "905",
	"ERR_SASLABORTED":       "906",
	"ERR_SASLALREADY":       "907",
	"RPL_SASLMECHS":         "908",
}

var numericNames = make(map[string]string, len(numericCodes))

func init() {
	for name, code := range numericCodes {
		numericNames[code] = name
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// replyCode resolves a symbolic reply name or a numeric string to the
// three-digit command used on the wire. Unknown names are returned
// unchanged so that patterns built from them simply never match.
func replyCode(name string) string {
	if isNumeric(name) {
		if len(name) < 3 {
			var n int
			fmt.Sscanf(name, "%d", &n)
			return fmt.Sprintf("%03d", n)
		}
		return name
	}
	if code, ok := numericCodes[name]; ok {
		return code
	}
	return name
}

// replyName returns the symbolic name for a numeric command, if known.
func replyName(code string) (string, bool) {
	name, ok := numericNames[code]
	return name, ok
}
