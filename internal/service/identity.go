// identity.go — регистрация, вход и валидация токенов.
// Токены — RS256 JWT без серверных сессий. Публичная часть ключа
// хранится в in-memory JWKS (jwkset) и отдаётся на /.well-known/jwks.json,
// проверка подписи идёт через keyfunc поверх того же хранилища.
package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
)

// rsaKeyBits — размер эфемерного ключа, если PEM не задан.
const rsaKeyBits = 2048

// IdentityConfig — параметры IdentityService.
type IdentityConfig struct {
	// Issuer — значение iss в выпускаемых токенах
	Issuer string
	// TTL — время жизни токена
	TTL time.Duration
	// Leeway — допустимое расхождение часов при проверке
	Leeway time.Duration
	// BcryptCost — стоимость bcrypt
	BcryptCost int
	// DefaultStorageLimit — лимит хранилища новых пользователей (байт)
	DefaultStorageLimit int64
}

// AuthResult — результат регистрации или входа.
type AuthResult struct {
	Token string
	User  *model.User
}

// IdentityService — учётные записи и токены.
type IdentityService struct {
	users     repository.UserRepository
	cfg       IdentityConfig
	key       *rsa.PrivateKey
	kid       string
	jwks      jwkset.Storage
	keyfunc   keyfunc.Keyfunc
	dummyHash []byte
	now       func() time.Time
	logger    *slog.Logger
}

// NewIdentityService создаёт сервис с ключом подписи key.
func NewIdentityService(
	ctx context.Context,
	users repository.UserRepository,
	key *rsa.PrivateKey,
	cfg IdentityConfig,
	logger *slog.Logger,
) (*IdentityService, error) {
	kid, err := keyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	storage := jwkset.NewMemoryStorage()
	jwk, err := jwkset.NewJWKFromKey(&key.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			ALG: jwkset.AlgRS256,
			KID: kid,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWK: %w", err)
	}
	if err := storage.KeyWrite(ctx, jwk); err != nil {
		return nil, fmt.Errorf("запись JWK в хранилище: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	// Хэш для выравнивания времени ответа при неизвестном email
	dummy, err := bcrypt.GenerateFromPassword([]byte("file-vault-timing"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("генерация dummy-хэша: %w", err)
	}

	return &IdentityService{
		users:     users,
		cfg:       cfg,
		key:       key,
		kid:       kid,
		jwks:      storage,
		keyfunc:   kf,
		dummyHash: dummy,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "identity")),
	}, nil
}

// Register создаёт пользователя и выдаёт ему токен.
func (s *IdentityService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	res, err := s.register(ctx, username, email, password)
	observe("register", err)
	return res, err
}

func (s *IdentityService) register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email и пароль обязательны", ErrInvalidInput)
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: пароль длиннее 72 байт", ErrInvalidInput)
		}
		return nil, fmt.Errorf("хэширование пароля: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		StorageLimit: s.cfg.DefaultStorageLimit,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", user.ID),
	)
	return &AuthResult{Token: token, User: user}, nil
}

// Authenticate проверяет пароль и выдаёт токен.
// Неизвестный email — ErrNotFound, неверный пароль — ErrInvalidCredential.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	res, err := s.authenticate(ctx, email, password)
	observe("login", err)
	return res, err
}

func (s *IdentityService) authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// ValidateToken проверяет подпись, exp, nbf и iss. Возвращает sub.
// Любая причина отказа — ErrInvalidToken.
func (s *IdentityService) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyfunc.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		if err != nil {
			s.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		}
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// CurrentUser возвращает профиль пользователя или ErrNotFound.
func (s *IdentityService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// JWKS возвращает публичный JWK Set в JSON.
func (s *IdentityService) JWKS(ctx context.Context) (json.RawMessage, error) {
	return s.jwks.JSONPublic(ctx)
}

// issueToken подписывает токен для пользователя.
func (s *IdentityService) issueToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// LoadSigningKey читает RSA-ключ из PEM (PKCS#1 или PKCS#8).
// При пустом path генерирует эфемерный ключ: токены не переживут рестарт.
func LoadSigningKey(path string, logger *slog.Logger) (*rsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("FV_JWT_PRIVATE_KEY_PATH не задан, используется эфемерный ключ подписи",
			slog.Int("bits", rsaKeyBits),
		)
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, fmt.Errorf("генерация RSA-ключа: %w", err)
		}
		return key, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение ключа %s: %w", path, err)
	}
	return ParseSigningKey(data)
}

// ParseSigningKey разбирает PEM с RSA-ключом.
func ParseSigningKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("PEM-блок не найден")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("разбор PKCS#8: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("ожидался RSA-ключ, получен %T", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("неподдерживаемый тип PEM-блока %q", block.Type)
	}
}

// keyID — стабильный kid: первые 16 hex-символов SHA-256 от DER публичного ключа.
func keyID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("сериализация публичного ключа: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])[:16], nil
}
