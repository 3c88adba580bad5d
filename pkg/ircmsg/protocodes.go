package ircmsg

const (
	// Registration commands
	// PassCmd `PASS secretpass` [Password message](https://tools.ietf.org/html/rfc2812#section-3.1.1)
	PassCmd = "PASS"
	// NickCmd `NICK tehcyx` [Nick message](https://tools.ietf.org/html/rfc2812#section-3.1.2)
	NickCmd = "NICK"
	// UserCmd `USER <user> <mode> <unused> <realname>` [User message](https://tools.ietf.org/html/rfc2812#section-3.1.3)
	UserCmd = "USER"
	// QuitCmd `QUIT [<Quit message>]` [Quit](https://tools.ietf.org/html/rfc2812#section-3.1.7)
	QuitCmd = "QUIT"
	// CapCmd `CAP LS 302` [Capability negotiation](https://ircv3.net/specs/extensions/capability-negotiation)
	CapCmd = "CAP"
	// !Registration commands

	// Client commands
	PrivmsgCmd = "PRIVMSG"
	NoticeCmd  = "NOTICE"
	TagmsgCmd  = "TAGMSG"
	PingCmd    = "PING"
	PongCmd    = "PONG"
	JoinCmd    = "JOIN"
	PartCmd    = "PART"
	KickCmd    = "KICK"
	TopicCmd   = "TOPIC"
	ModeCmd    = "MODE"
	NamesCmd   = "NAMES"
	WhoCmd     = "WHO"
	WhoisCmd   = "WHOIS"
	AwayCmd    = "AWAY"
	ErrorCmd   = "ERROR"
	BatchCmd   = "BATCH"
	// !Client commands

	// Command Responses
	RplWelcome      = "001"
	RplYourHost     = "002"
	RplCreated      = "003"
	RplMyInfo       = "004"
	RplISupport     = "005"
	RplUModeIs      = "221"
	RplAway         = "301"
	RplUnAway       = "305"
	RplNowAway      = "306"
	RplEndOfWho     = "315"
	RplChannelModes = "324"
	RplNoTopic      = "331"
	RplTopic        = "332"
	RplTopicWhoTime = "333"
	RplWhoReply     = "352"
	RplNameReply    = "353"
	RplEndOfNames   = "366"
	RplMotd         = "372"
	RplMotdStart    = "375"
	RplEndOfMotd    = "376"
	// !Command Responses

	// Error commands
	ErrNoSuchNick        = "401"
	ErrNoSuchChannel     = "403"
	ErrCannotSendToChan  = "404"
	ErrNoOrigin          = "409"
	ErrNoRecipient       = "411"
	ErrNoTextToSend      = "412"
	ErrUnknownCommand    = "421"
	ErrNoMotd            = "422"
	ErrNickNull          = "431"
	ErrNickInvalid       = "432"
	ErrNickInUse         = "433"
	ErrNickCollision     = "436"
	ErrUserNotInChannel  = "441"
	ErrNotOnChannel      = "442"
	ErrNotRegistered     = "451"
	ErrNeedMoreParams    = "461" // <command> :Not enough parameters
	ErrAlreadyRegistered = "462" // :You may not reregister
	ErrPasswdMismatch    = "464"
	ErrYoureBannedCreep  = "465"
	ErrChannelIsFull     = "471"
	ErrInviteOnlyChan    = "473"
	ErrBannedFromChan    = "474"
	ErrBadChannelKey     = "475"
	ErrChanOPrivsNeeded  = "482"
	// !Error commands
)

var numerics = map[string]string{
	RplWelcome:           "RPL_WELCOME",
	RplYourHost:          "RPL_YOURHOST",
	RplCreated:           "RPL_CREATED",
	RplMyInfo:            "RPL_MYINFO",
	RplISupport:          "RPL_ISUPPORT",
	RplUModeIs:           "RPL_UMODEIS",
	RplAway:              "RPL_AWAY",
	RplUnAway:            "RPL_UNAWAY",
	RplNowAway:           "RPL_NOWAWAY",
	RplEndOfWho:          "RPL_ENDOFWHO",
	RplChannelModes:      "RPL_CHANNELMODEIS",
	RplNoTopic:           "RPL_NOTOPIC",
	RplTopic:             "RPL_TOPIC",
	RplTopicWhoTime:      "RPL_TOPICWHOTIME",
	RplWhoReply:          "RPL_WHOREPLY",
	RplNameReply:         "RPL_NAMREPLY",
	RplEndOfNames:        "RPL_ENDOFNAMES",
	RplMotd:              "RPL_MOTD",
	RplMotdStart:         "RPL_MOTDSTART",
	RplEndOfMotd:         "RPL_ENDOFMOTD",
	ErrNoSuchNick:        "ERR_NOSUCHNICK",
	ErrNoSuchChannel:     "ERR_NOSUCHCHANNEL",
	ErrCannotSendToChan:  "ERR_CANNOTSENDTOCHAN",
	ErrNoOrigin:          "ERR_NOORIGIN",
	ErrNoRecipient:       "ERR_NORECIPIENT",
	ErrNoTextToSend:      "ERR_NOTEXTTOSEND",
	ErrUnknownCommand:    "ERR_UNKNOWNCOMMAND",
	ErrNoMotd:            "ERR_NOMOTD",
	ErrNickNull:          "ERR_NONICKNAMEGIVEN",
	ErrNickInvalid:       "ERR_ERRONEUSNICKNAME",
	ErrNickInUse:         "ERR_NICKNAMEINUSE",
	ErrNickCollision:     "ERR_NICKCOLLISION",
	ErrUserNotInChannel:  "ERR_USERNOTINCHANNEL",
	ErrNotOnChannel:      "ERR_NOTONCHANNEL",
	ErrNotRegistered:     "ERR_NOTREGISTERED",
	ErrNeedMoreParams:    "ERR_NEEDMOREPARAMS",
	ErrAlreadyRegistered: "ERR_ALREADYREGISTRED",
	ErrPasswdMismatch:    "ERR_PASSWDMISMATCH",
	ErrYoureBannedCreep:  "ERR_YOUREBANNEDCREEP",
	ErrChannelIsFull:     "ERR_CHANNELISFULL",
	ErrInviteOnlyChan:    "ERR_INVITEONLYCHAN",
	ErrBannedFromChan:    "ERR_BANNEDFROMCHAN",
	ErrBadChannelKey:     "ERR_BADCHANNELKEY",
	ErrChanOPrivsNeeded:  "ERR_CHANOPRIVSNEEDED",
}

// NumericName returns the symbolic name of a known numeric reply, or false
// when the code is not in the table.
func NumericName(code string) (string, bool) {
	name, ok := numerics[code]
	return name, ok
}

// IsErrorNumeric reports whether code is in the 400-599 error range.
func IsErrorNumeric(code string) bool {
	return isNumeric(code) && code[0] >= '4' && code[0] <= '5'
}
